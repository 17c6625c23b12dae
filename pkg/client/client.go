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

package client

import (
	"context"
	"fmt"

	"github.com/dr0pdb/icecanefs/pkg/cachefs"
	"github.com/dr0pdb/icecanefs/pkg/server"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client is responsible for communicating with the cachefs daemon
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon at target. opts are appended to the default insecure option.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	log.WithFields(log.Fields{"target": target}).Debug("client::client::Dial; started")
	var dialOpts []grpc.DialOption
	dialOpts = append(dialOpts, grpc.WithInsecure())
	dialOpts = append(dialOpts, opts...)
	conn, err := grpc.Dial(target, dialOpts...)
	if err != nil {
		log.Error(fmt.Sprintf("client::client::Dial; error in dialing %s: %v", target, err))
		return nil, err
	}

	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Open makes an Open RPC call and returns the logical handle.
func (c *Client) Open(ctx context.Context, path string) (cachefs.Handle, error) {
	resp := new(wrapperspb.Int64Value)
	err := c.conn.Invoke(ctx, server.OpenMethod, &wrapperspb.StringValue{Value: path}, resp)
	if err != nil {
		log.Error(fmt.Sprintf("client::client::Open; error in grpc request: %v", err))
		return 0, err
	}
	return cachefs.Handle(resp.GetValue()), nil
}

// CloseHandle makes a Close RPC call for the handle.
func (c *Client) CloseHandle(ctx context.Context, h cachefs.Handle) error {
	err := c.conn.Invoke(ctx, server.CloseMethod, &wrapperspb.Int64Value{Value: int64(h)}, new(emptypb.Empty))
	if err != nil {
		log.Error(fmt.Sprintf("client::client::CloseHandle; error in grpc request: %v", err))
	}
	return err
}

// Read reads up to count bytes at offset. Fewer bytes are returned at the end of the file.
func (c *Client) Read(ctx context.Context, h cachefs.Handle, count int, offset int64) ([]byte, error) {
	req := &structpb.Struct{
		Fields: map[string]*structpb.Value{
			server.HandleField: numberValue(float64(h)),
			server.CountField:  numberValue(float64(count)),
			server.OffsetField: numberValue(float64(offset)),
		},
	}
	resp := new(wrapperspb.BytesValue)
	err := c.conn.Invoke(ctx, server.ReadMethod, req, resp)
	if err != nil {
		log.Error(fmt.Sprintf("client::client::Read; error in grpc request: %v", err))
		return nil, err
	}
	return resp.GetValue(), nil
}

// PrintCache asks the daemon to append its cache state to logPath.
// The path is resolved on the daemon's host.
func (c *Client) PrintCache(ctx context.Context, logPath string) error {
	return c.conn.Invoke(ctx, server.PrintCacheMethod, &wrapperspb.StringValue{Value: logPath}, new(emptypb.Empty))
}

// PrintStats asks the daemon to append its hit and miss counters to logPath.
func (c *Client) PrintStats(ctx context.Context, logPath string) error {
	return c.conn.Invoke(ctx, server.PrintStatsMethod, &wrapperspb.StringValue{Value: logPath}, new(emptypb.Empty))
}

// Stats fetches the cache counters.
func (c *Client) Stats(ctx context.Context) (cachefs.Stats, error) {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, server.StatsMethod, new(emptypb.Empty), resp); err != nil {
		log.Error(fmt.Sprintf("client::client::Stats; error in grpc request: %v", err))
		return cachefs.Stats{}, err
	}

	f := resp.GetFields()
	return cachefs.Stats{
		Hits:      uint64(f[server.HitsField].GetNumberValue()),
		Misses:    uint64(f[server.MissesField].GetNumberValue()),
		Resident:  int(f[server.ResidentField].GetNumberValue()),
		Capacity:  int(f[server.CapacityField].GetNumberValue()),
		BlockSize: int64(f[server.BlockSizeField].GetNumberValue()),
	}, nil
}

func numberValue(v float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: v}}
}
