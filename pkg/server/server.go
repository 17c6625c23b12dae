/**
 * Copyright 2020 The IcecaneDB Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package server

import (
	"context"
	"math"
	"strings"
	"sync"

	internal "github.com/dr0pdb/icecanefs/internal/common"
	"github.com/dr0pdb/icecanefs/pkg/cachefs"
	"github.com/dr0pdb/icecanefs/pkg/common"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// MaxReadSize is the largest count a single Read call may ask for.
	MaxReadSize = 8 * 1024 * 1024
)

// CacheFSServer receives requests from clients and forwards them to a single cache.
// The cache isn't safe for concurrent use so every call holds mu.
type CacheFSServer struct {
	mu    sync.Mutex
	cache *cachefs.CacheFS

	// set once the cache is destroyed, checked before taking mu.
	stopped common.ProtectedBool
}

var _ CacheFSService = (*CacheFSServer)(nil)

// OptionsFromConfig converts the daemon config into cache options.
func OptionsFromConfig(conf *common.CacheFSConfig) (*cachefs.Options, error) {
	algorithm, err := cachefs.ParseAlgorithm(conf.Algorithm)
	if err != nil {
		return nil, internal.NewConfigurationError("server: bad algorithm", err)
	}
	return &cachefs.Options{
		Capacity:    conf.Capacity,
		Algorithm:   algorithm,
		OldFraction: conf.OldFraction,
		NewFraction: conf.NewFraction,
		ScratchRoot: conf.ScratchRoot,
	}, nil
}

// NewCacheFSServer creates a new instance of the server with a freshly initialized cache.
func NewCacheFSServer(options *cachefs.Options) (*CacheFSServer, error) {
	log.Info("server::server::NewCacheFSServer; started")
	cache, err := cachefs.NewCacheFS(options)
	if err != nil {
		return nil, err
	}

	log.Info("server::server::NewCacheFSServer; done")
	return &CacheFSServer{
		cache: cache,
	}, nil
}

//
// grpc server calls - incoming to this server from clients
//

// Open opens the requested path in the cache.
func (s *CacheFSServer) Open(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	log.WithFields(log.Fields{"path": req.GetValue()}).Debug("server::server::Open; started")
	if err := s.checkServing(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.cache.Open(req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return &wrapperspb.Int64Value{Value: int64(h)}, nil
}

// Close closes a handle returned by Open.
func (s *CacheFSServer) Close(ctx context.Context, req *wrapperspb.Int64Value) (*emptypb.Empty, error) {
	log.WithFields(log.Fields{"handle": req.GetValue()}).Debug("server::server::Close; started")
	if err := s.checkServing(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cache.Close(cachefs.Handle(req.GetValue())); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Read reads a byte range through the cache.
// A failed block load discards the partial result and returns DataLoss.
func (s *CacheFSServer) Read(ctx context.Context, req *structpb.Struct) (*wrapperspb.BytesValue, error) {
	if err := s.checkServing(); err != nil {
		return nil, err
	}

	handle, err := numberField(req, HandleField)
	if err != nil {
		return nil, err
	}
	count, err := numberField(req, CountField)
	if err != nil {
		return nil, err
	}
	offset, err := numberField(req, OffsetField)
	if err != nil {
		return nil, err
	}
	if count < 0 || count > MaxReadSize {
		return nil, status.Errorf(codes.InvalidArgument, "count %d out of range [0, %d]", count, MaxReadSize)
	}

	log.WithFields(log.Fields{"handle": handle, "count": count, "offset": offset}).Debug("server::server::Read; started")

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, count)
	n, err := s.cache.Read(cachefs.Handle(handle), buf, offset)
	if err != nil {
		log.WithFields(log.Fields{"handle": handle, "read": n, "err": err}).Error("server::server::Read; read failed")
		return nil, toStatus(err)
	}
	return &wrapperspb.BytesValue{Value: buf[:n]}, nil
}

// PrintCache appends the cache state to the log file.
func (s *CacheFSServer) PrintCache(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.checkServing(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cache.PrintCache(req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// PrintStats appends the hit and miss counters to the log file.
func (s *CacheFSServer) PrintStats(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.checkServing(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cache.PrintStats(req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Stats returns the cache counters.
func (s *CacheFSServer) Stats(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.checkServing(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	st := s.cache.Stats()
	s.mu.Unlock()

	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			HitsField:      numberValue(float64(st.Hits)),
			MissesField:    numberValue(float64(st.Misses)),
			ResidentField:  numberValue(float64(st.Resident)),
			CapacityField:  numberValue(float64(st.Capacity)),
			BlockSizeField: numberValue(float64(st.BlockSize)),
		},
	}, nil
}

// Destroy tears down the cache. Calls made afterwards fail with Unavailable.
func (s *CacheFSServer) Destroy() error {
	log.Info("server::server::Destroy; started")
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped.Get() {
		return nil
	}
	s.stopped.Set(true)
	err := s.cache.Destroy()

	log.Info("server::server::Destroy; done")
	return err
}

func (s *CacheFSServer) checkServing() error {
	if s.stopped.Get() {
		return status.Error(codes.Unavailable, "cachefs server is shutting down")
	}
	return nil
}

func numberValue(v float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: v}}
}

// numberField returns the integral number stored under name.
func numberField(req *structpb.Struct, name string) (int64, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "missing field %q", name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "field %q is not a number", name)
	}
	f := n.NumberValue
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, status.Errorf(codes.InvalidArgument, "field %q is not an integer", name)
	}
	return int64(f), nil
}

// toStatus maps the cache error taxonomy onto grpc status codes.
func toStatus(err error) error {
	var (
		configErr internal.ConfigurationError
		uninitErr internal.UninitializedError
		pathErr   internal.PathError
		handleErr internal.HandleError
		ioErr     internal.IOError
		allocErr  internal.AllocationError
	)

	code := codes.Internal
	switch {
	case errors.As(err, &configErr), errors.As(err, &uninitErr):
		code = codes.FailedPrecondition
	case errors.As(err, &pathErr):
		code = codes.InvalidArgument
	case errors.As(err, &handleErr):
		code = codes.NotFound
	case errors.As(err, &ioErr):
		code = codes.DataLoss
	case errors.As(err, &allocErr):
		code = codes.ResourceExhausted
	}
	return status.Error(code, strings.TrimPrefix(err.Error(), "cachefs: "))
}
