package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/yungbote/clipreview-backend/internal/app"
	"github.com/yungbote/clipreview-backend/internal/modules/review/pipeline"
	"github.com/yungbote/clipreview-backend/internal/platform/shutdown"
)

func main() {
	var (
		rawURL   string
		distinct bool
		compact  bool
	)
	flag.StringVar(&rawURL, "url", "", "media page or direct media URL to review")
	flag.BoolVar(&distinct, "distinct", false, "locate repeated flagged sections at distinct positions")
	flag.BoolVar(&compact, "compact", false, "print compact JSON")
	flag.Parse()

	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		fmt.Fprintln(os.Stderr, "usage: clipreview-run -url <url> [-distinct] [-compact]")
		os.Exit(2)
	}

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	runner, err := app.NewRunner(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}
	defer runner.Close()

	res, err := runner.Pipeline.Process(ctx, rawURL, pipeline.ProcessOptions{DistinctDuplicates: distinct})
	if err != nil {
		code := "failed"
		var se *pipeline.StageError
		if errors.As(err, &se) {
			code = se.Code()
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", code, err)
		runner.Close()
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	if !compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(res); err != nil {
		fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
		runner.Close()
		os.Exit(1)
	}
}
