// Command price prints unit prices from the configured price source.
//
//	price -from ETH -to USDT
//	price -pairs ETH/USDT,WBTC/USDT -amount 2
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/smartswap/params"
	"github.com/uhyunpark/smartswap/pkg/app/core/numeric"
	"github.com/uhyunpark/smartswap/pkg/pricesource"
)

type result struct {
	pair  string
	price float64
	err   error
}

func main() {
	var (
		from       = flag.String("from", "ETH", "base symbol")
		to         = flag.String("to", "USDT", "quote symbol")
		amount     = flag.String("amount", "", "trade size passed to the source (optional)")
		pairs      = flag.String("pairs", "", "comma separated BASE/QUOTE list; overrides -from/-to")
		source     = flag.String("source", "", "price source kind; overrides PRICE_SOURCE")
		configPath = flag.String("config", "", "YAML config file")
		timeout    = flag.Duration("timeout", 15*time.Second, "overall deadline")
	)
	flag.Parse()

	if *source != "" {
		os.Setenv("PRICE_SOURCE", *source)
	}
	cfg, err := params.Load(*configPath, "")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var amt *decimal.Decimal
	if *amount != "" {
		d, err := numeric.Parse(*amount)
		if err != nil {
			log.Fatalf("amount: %v", err)
		}
		amt = &d
	}

	list := [][2]string{{*from, *to}}
	if *pairs != "" {
		list, err = parsePairs(*pairs)
		if err != nil {
			log.Fatalf("pairs: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	opts, err := cfg.PriceSourceOptions()
	if err != nil {
		log.Fatalf("price source: %v", err)
	}
	src, err := pricesource.New(ctx, opts)
	if err != nil {
		log.Fatalf("price source: %v", err)
	}

	// Lookups are independent: one failing pair does not cancel the others.
	results := make([]result, len(list))
	var g errgroup.Group
	for i, p := range list {
		g.Go(func() error {
			price, err := src.GetPrice(ctx, p[0], p[1], amt)
			results[i] = result{pair: p[0] + "/" + p[1], price: price, err: err}
			return nil
		})
	}
	g.Wait()

	failed := false
	for _, r := range results {
		if r.err != nil {
			failed = true
			fmt.Fprintf(os.Stderr, "%-12s error: %v\n", r.pair, r.err)
			continue
		}
		fmt.Printf("%-12s %s (%s)\n", r.pair, decimal.NewFromFloat(r.price).String(), src.Name())
	}
	if failed {
		os.Exit(1)
	}
}

func parsePairs(s string) ([][2]string, error) {
	var out [][2]string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		base, quote, ok := strings.Cut(item, "/")
		if !ok || base == "" || quote == "" {
			return nil, fmt.Errorf("%q is not BASE/QUOTE", item)
		}
		out = append(out, [2]string{strings.ToUpper(base), strings.ToUpper(quote)})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no pairs in %q", s)
	}
	return out, nil
}
