package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/hxrts/aura-sub001/pkg/store"
)

func runVerifyReceipts(args []string) error {
	cmd := flag.NewFlagSet("verify-receipts", flag.ContinueOnError)
	dbPath := cmd.String("db", "", "path to the receipt-chain database")
	limit := cmd.Int("list", 0, "also print the newest N receipts")
	if err := cmd.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" {
		return fmt.Errorf("verify-receipts: -db is required")
	}

	s, err := store.OpenSQLiteReceiptStore(*dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	ok, err := s.VerifyChain(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("receipt chain is BROKEN")
	}
	head, err := s.Head(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("receipt chain valid, head %s\n", head)

	if *limit > 0 {
		receipts, err := s.List(ctx, *limit)
		if err != nil {
			return err
		}
		for _, r := range receipts {
			fmt.Printf("ctx=%s src=%s dst=%s epoch=%d cost=%d nonce=%d\n",
				r.Ctx, r.Src, r.Dst, r.Epoch.Value(), r.Cost, r.Nonce)
		}
	}
	return nil
}
