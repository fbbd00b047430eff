// Command tail follows a gateway push-session from the terminal and
// prints quote and candle updates as they arrive. Useful for smoke
// testing a deployment without a browser.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kiwoom-gateway/internal/logger"
	"kiwoom-gateway/internal/model"
	"kiwoom-gateway/internal/streamclient"
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:8080", "gateway base URL")
		symbol    = flag.String("symbol", "005930", "instrument code")
		timeframe = flag.String("timeframe", "D", "timeframe (D, W, M, 60, 30, 15, 5, 1)")
		logLevel  = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()

	log := logger.Init("tail", logger.ParseLevel(*logLevel))

	client := streamclient.New(streamclient.Config{
		BaseURL:   *baseURL,
		Symbol:    *symbol,
		Timeframe: model.ParseTimeframe(*timeframe),
		OnQuote: func(q model.Quote) {
			fmt.Printf("%s  %s  price=%.0f  change=%+.0f (%+.2f%%)\n",
				q.UpdatedAt.Format("15:04:05"), q.Symbol, q.Price, q.Change, q.ChangePercent)
		},
		OnCandle: func(c model.Candle) {
			fmt.Printf("bar %s  o=%.0f h=%.0f l=%.0f c=%.0f v=%d\n",
				c.Time, c.Open, c.High, c.Low, c.Close, c.Volume)
		},
		OnAdvisory: func(msg string) {
			fmt.Fprintf(os.Stderr, "! %s\n", msg)
		},
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigterm := make(chan os.Signal, 1)
		signal.Notify(sigterm, syscall.SIGINT, syscall.SIGTERM)
		<-sigterm
		cancel()
	}()

	if err := client.Run(ctx); err != nil && err != context.Canceled {
		log.Error("stream ended", "err", err)
		os.Exit(1)
	}

	// Show what we accumulated before exit.
	snap := client.Snapshot()
	fmt.Printf("closed with %d candles cached\n", len(snap.Candles))
}
