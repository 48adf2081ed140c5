package main

import (
	"chatto/repositories"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"
)

func main() {
	dbPath := pflag.StringP("db", "d", "./data/badger", "Path to badger DB")
	prefix := pflag.StringP("prefix", "p", repositories.PrefixConversation, "Key prefix to scan")
	limit := pflag.IntP("limit", "n", 100, "Maximum number of rows, 0 for all")
	width := pflag.Int("width", 80, "Truncate details longer than this, 0 to disable")
	pflag.Parse()

	if err := run(*dbPath, *prefix, *limit, *width); err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}
}

func run(dbPath, prefix string, limit, width int) error {
	db, err := openDB(dbPath)
	if err != nil {
		return fmt.Errorf("opening badger: %w", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Version", "Expires", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	rows := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			if limit > 0 && rows >= limit {
				return nil
			}
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			key := string(item.Key())
			kind, detail := repositories.Describe(key, val)

			expires := "-"
			if at := item.ExpiresAt(); at > 0 {
				expires = fmt.Sprintf("%d", at)
			}
			table.Append([]string{key, kind, fmt.Sprintf("%d", item.Version()), expires, truncate(detail, width)})
			rows++
		}
		return nil
	})
	if err != nil {
		return err
	}

	table.Render()
	fmt.Printf("\n%d row(s) under %q\n", rows, prefix)
	return nil
}

func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
