// Command csvsplit splits a contact export into fixed-size CSV shards.
//
//	csvsplit split uploads/main_file.csv --batch 50000
//	csvsplit split uploads/main_file.csv --range 1000:2000 --batch 250
//	csvsplit range uploads/main_file.csv 1000 2000 250
//	csvsplit batch ./data 50000
//	csvsplit inspect uploads/main_file.csv --rows 10
//
// Exit status is 1 for usage and configuration errors and 2 when the run
// itself fails.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	// register every ledger backend with the storage factory
	_ "csvsplit/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
