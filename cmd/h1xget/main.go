// Command h1xget performs a single HTTP/1 GET against a URL using the h1x
// engine directly over a real TCP connection, the way fasthttp's own
// examples/ directory drives its client: plain flag-based configuration,
// no retries, no redirects, one exchange per run.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/relayhaus/h1x"
	"github.com/relayhaus/h1x/internal/nbconn"
	"github.com/relayhaus/h1x/logx"
)

func main() {
	var (
		timeout       = flag.Duration("timeout", 10*time.Second, "overall exchange deadline")
		headerCap     = flag.Int("header-buf", 16*1024, "response header buffer capacity in bytes")
		bodyCap       = flag.Int("body-buf", 64*1024, "request/response body buffer capacity in bytes")
		maxBodyBlocks = flag.Int("max-body-blocks", 4, "how many body-buf-sized blocks the request body buffer may grow to")
		data          = flag.String("data", "", "request body; sends a POST instead of a GET")
		verbose       = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <url>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *verbose {
		logx.SetLevel(logrus.DebugLevel)
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *timeout, *headerCap, *bodyCap, *maxBodyBlocks, *data); err != nil {
		logx.L().WithError(err).Error("h1xget: exchange failed")
		os.Exit(1)
	}
}

func run(rawURL string, timeout time.Duration, headerCap, bodyCap, maxBodyBlocks int, data string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" {
		return fmt.Errorf("h1xget only supports http:// (got %q)", u.Scheme)
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "80")
	}

	entry := logx.Phase(logx.Exchange(uuid.NewString()), "dial")
	entry.WithField("host", host).Debug("dialing")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return fmt.Errorf("dial %s: %w", host, err)
	}
	defer nc.Close()

	conn := nbconn.New(nc)

	path := u.RequestURI()
	if path == "" {
		path = "/"
	}

	req := h1x.NewExchange(conn, conn, headerCap, bodyCap).WithLogger(cliLogger{entry})

	method := "GET"
	bodySize := h1x.BodySize{Kind: h1x.BodyNone}
	body := []byte(data)
	if len(body) > 0 {
		method = "POST"
		bodySize = h1x.BodySize{Kind: h1x.BodyKnown, Len: int64(len(body))}
	}

	rh, err := req.PrepareHeader(method, path, []h1x.Header{
		{Name: "Host", Value: u.Hostname()},
		{Name: "User-Agent", Value: "h1xget/1"},
		{Name: "Connection", Value: "close"},
	}, bodySize, false, nil, len(body) == 0)
	if err != nil {
		return fmt.Errorf("prepare header: %w", err)
	}

	rb, err := rh.Send(ctx)
	if err != nil {
		return fmt.Errorf("send header: %w", err)
	}

	if len(body) > 0 {
		if err := stageBody(rb, body, maxBodyBlocks); err != nil {
			return fmt.Errorf("stage body: %w", err)
		}
	}

	var status h1x.SendStatus
	for {
		status, err = rb.Send(ctx)
		if err != nil {
			return fmt.Errorf("send body: %w", err)
		}
		if status.Outcome != h1x.SendPartial {
			break
		}
	}
	if status.Outcome != h1x.SendComplete && status.Outcome != h1x.SendEarlyResponse {
		return fmt.Errorf("unexpected send outcome: %v", status.Outcome)
	}

	var scratch h1x.Scratch
	rbkh, err := status.Response.RecvHeader(ctx, &scratch)
	if err != nil {
		return fmt.Errorf("recv header: %w", err)
	}

	owned := rbkh.Owned()
	fmt.Printf("HTTP %d %s\n", owned.StatusCode(), owned.Reason())
	for _, h := range owned.Headers() {
		fmt.Printf("%s: %s\n", h.Name, h.Value)
	}
	fmt.Println()

	respBody := rbkh.DiscardHeader()
	dest := make([]byte, 32*1024)
	for {
		recv, err := respBody.TryRecv(dest, &scratch)
		if err != nil {
			return fmt.Errorf("recv body: %w", err)
		}
		os.Stdout.Write(dest[:recv.Written])
		if recv.Outcome == h1x.RecvComplete {
			return nil
		}
		if err := respBody.AddToBuffer(ctx); err != nil {
			return fmt.Errorf("fill body buffer: %w", err)
		}
	}
}

// stageBody copies data into the request body buffer, growing it (up to
// maxBlocks blocks) whenever it fills up before the whole body fits. The
// reserve callback is trivially always-true here: h1xget has no memory
// budget of its own to gate against, unlike a proxy juggling many
// concurrent exchanges would.
func stageBody(rb *h1x.RequestBody, data []byte, maxBlocks int) error {
	remaining := data
	prevBlocks := -1
	for len(remaining) > 0 {
		n, err := rb.Prepare(remaining, true)
		if err != nil {
			return err
		}
		remaining = remaining[n:]
		if len(remaining) == 0 {
			break
		}
		blocks, err := rb.ExpandWriteBuffer(maxBlocks, func() bool { return true })
		if err != nil {
			return err
		}
		if blocks == prevBlocks {
			return fmt.Errorf("body buffer stuck at %d blocks (max-body-blocks=%d) with %d bytes left to stage", blocks, maxBlocks, len(remaining))
		}
		prevBlocks = blocks
	}
	return nil
}

type cliLogger struct {
	entry *logrus.Entry
}

func (l cliLogger) Printf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}
