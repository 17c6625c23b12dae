package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dr0pdb/icecanefs/pkg/cachefs"
	"github.com/dr0pdb/icecanefs/pkg/client"
	"github.com/dr0pdb/icecanefs/pkg/common"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

const (
	rpcTimeout = 30 * time.Second
)

type cmdHandlerWithClient func(ctx *cli.Context, c *client.Client) error

type checkFunc func(ctx *cli.Context) error

// withClient dials the daemon named by the config and the global flags.
func withClient(handler cmdHandlerWithClient) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		conf := common.NewDefaultClientConfig()
		conf.LoadFromFile(ctx.GlobalString("config"))
		if addr := ctx.GlobalString("address"); addr != "" {
			conf.Address = addr
		}
		if port := ctx.GlobalString("port"); port != "" {
			conf.Port = port
		}

		c, err := client.Dial(conf.Target())
		if err != nil {
			return err
		}
		defer c.Close()
		return handler(ctx, c)
	}
}

func withArgCheck(checker checkFunc, handler cli.ActionFunc) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		if err := checker(ctx); err != nil {
			if herr := cli.ShowCommandHelp(ctx, ctx.Command.Name); herr != nil {
				log.Warningf("Failed to display --help: %v", herr)
			}
			return err
		}
		return handler(ctx)
	}
}

func needAtLeast(min int) checkFunc {
	return func(ctx *cli.Context) error {
		if ctx.NArg() < min {
			return fmt.Errorf("need at least %d argument(s)", min)
		}
		return nil
	}
}

func rpcContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), rpcTimeout)
}

func parseHandle(s string) (cachefs.Handle, error) {
	h, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad handle %q", s)
	}
	return cachefs.Handle(h), nil
}

func handleOpen(ctx *cli.Context, c *client.Client) error {
	rctx, cancel := rpcContext()
	defer cancel()

	h, err := c.Open(rctx, ctx.Args().First())
	if err != nil {
		return err
	}
	fmt.Println(h)
	return nil
}

func handleClose(ctx *cli.Context, c *client.Client) error {
	h, err := parseHandle(ctx.Args().First())
	if err != nil {
		return err
	}

	rctx, cancel := rpcContext()
	defer cancel()
	return c.CloseHandle(rctx, h)
}

func handleRead(ctx *cli.Context, c *client.Client) error {
	h, err := parseHandle(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	offset, err := strconv.ParseInt(ctx.Args().Get(1), 10, 64)
	if err != nil {
		return fmt.Errorf("bad offset %q", ctx.Args().Get(1))
	}
	count, err := strconv.Atoi(ctx.Args().Get(2))
	if err != nil {
		return fmt.Errorf("bad count %q", ctx.Args().Get(2))
	}

	rctx, cancel := rpcContext()
	defer cancel()

	data, err := c.Read(rctx, h, count, offset)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func handleCat(ctx *cli.Context, c *client.Client) error {
	rctx, cancel := rpcContext()
	defer cancel()

	h, err := c.Open(rctx, ctx.Args().First())
	if err != nil {
		return err
	}

	n, err := catHandle(rctx, c, h, ctx.Int("chunk"), os.Stdout)
	if cerr := c.CloseHandle(rctx, h); err == nil {
		err = cerr
	}
	log.WithFields(log.Fields{"path": ctx.Args().First(), "read": humanize.IBytes(uint64(n))}).Info("cachefs::handlers::handleCat; done")
	return err
}

// catHandle copies the whole file behind h to w, chunk bytes per call.
func catHandle(ctx context.Context, c *client.Client, h cachefs.Handle, chunk int, w io.Writer) (int64, error) {
	if chunk <= 0 {
		return 0, fmt.Errorf("bad chunk size %d", chunk)
	}

	var offset int64
	for {
		data, err := c.Read(ctx, h, chunk, offset)
		if err != nil {
			return offset, err
		}
		if len(data) == 0 {
			return offset, nil
		}
		if _, err := w.Write(data); err != nil {
			return offset, err
		}
		offset += int64(len(data))
	}
}

func handleDumpCache(ctx *cli.Context, c *client.Client) error {
	rctx, cancel := rpcContext()
	defer cancel()
	return c.PrintCache(rctx, ctx.Args().First())
}

func handleDumpStats(ctx *cli.Context, c *client.Client) error {
	rctx, cancel := rpcContext()
	defer cancel()
	return c.PrintStats(rctx, ctx.Args().First())
}

func handleStats(ctx *cli.Context, c *client.Client) error {
	rctx, cancel := rpcContext()
	defer cancel()

	st, err := c.Stats(rctx)
	if err != nil {
		return err
	}
	printStats(os.Stdout, st)
	return nil
}

func printStats(w io.Writer, st cachefs.Stats) {
	fmt.Fprintf(w, "Hits:       %s\n", humanize.Comma(int64(st.Hits)))
	fmt.Fprintf(w, "Misses:     %s\n", humanize.Comma(int64(st.Misses)))
	if total := st.Hits + st.Misses; total > 0 {
		fmt.Fprintf(w, "Hit ratio:  %.1f%%\n", 100*float64(st.Hits)/float64(total))
	}
	fmt.Fprintf(w, "Resident:   %d/%d blocks (%s of %s)\n",
		st.Resident, st.Capacity,
		humanize.IBytes(uint64(st.Resident)*uint64(st.BlockSize)),
		humanize.IBytes(uint64(st.Capacity)*uint64(st.BlockSize)),
	)
	fmt.Fprintf(w, "Block size: %s\n", humanize.IBytes(uint64(st.BlockSize)))
}

func handleShell(ctx *cli.Context, c *client.Client) error {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("cachefs> ")
		line, err := reader.ReadString('\n')
		if err == io.EOF && line == "" {
			return nil
		} else if err != nil && err != io.EOF {
			return err
		}

		line = strings.Trim(line, " \n")
		if line == "exit" {
			return nil
		}

		if err := execute(c, line, os.Stdout); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}
