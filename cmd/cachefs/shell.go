package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dr0pdb/icecanefs/pkg/client"
)

const shellHelp = `commands:
  open <path>
  close <handle>
  read <handle> <offset> <count>
  stats
  dump-cache <log-path>
  dump-stats <log-path>
  exit
`

// execute runs a single shell line against the daemon and prints the result to w.
func execute(c *client.Client, line string, w io.Writer) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	ctx, cancel := rpcContext()
	defer cancel()

	args := fields[1:]
	switch fields[0] {
	case "help":
		fmt.Fprint(w, shellHelp)
		return nil
	case "open":
		if len(args) != 1 {
			return fmt.Errorf("usage: open <path>")
		}
		h, err := c.Open(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\n", h)
	case "close":
		if len(args) != 1 {
			return fmt.Errorf("usage: close <handle>")
		}
		h, err := parseHandle(args[0])
		if err != nil {
			return err
		}
		return c.CloseHandle(ctx, h)
	case "read":
		if len(args) != 3 {
			return fmt.Errorf("usage: read <handle> <offset> <count>")
		}
		h, err := parseHandle(args[0])
		if err != nil {
			return err
		}
		offset, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad offset %q", args[1])
		}
		count, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("bad count %q", args[2])
		}
		data, err := c.Read(ctx, h, count, offset)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d bytes: %q\n", len(data), data)
	case "stats":
		st, err := c.Stats(ctx)
		if err != nil {
			return err
		}
		printStats(w, st)
	case "dump-cache":
		if len(args) != 1 {
			return fmt.Errorf("usage: dump-cache <log-path>")
		}
		return c.PrintCache(ctx, args[0])
	case "dump-stats":
		if len(args) != 1 {
			return fmt.Errorf("usage: dump-stats <log-path>")
		}
		return c.PrintStats(ctx, args[0])
	default:
		return fmt.Errorf("unknown command %q, try help", fields[0])
	}
	return nil
}
