package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/tendant/simple-feed/pkg/simplefeed"
	"github.com/tendant/simple-feed/pkg/simplefeed/config"
	"github.com/tendant/simple-feed/pkg/simplefeed/scan"
)

const usage = `Simple Feed Admin CLI

A lightweight admin tool for inspecting the feed store.

USAGE:
  admin <command> [options]

COMMANDS:
  list      List one page of a feed
  stats     Walk a whole feed and print engagement totals
  export    Walk a whole feed and print every record as a JSON line
  env       Describe the supported environment variables

ENVIRONMENT VARIABLES:
  DATABASE_TYPE     Database type: memory, postgres or mongo (default: memory)
  DATABASE_URL      Connection string (required for postgres and mongo)
  DB_SCHEMA         PostgreSQL search_path (default: public)
  MONGO_DATABASE    Mongo database name (default: simplefeed)

  Configuration can be loaded from a .env file in the current directory.
  Command line environment variables override .env file values.

EXAMPLES:
  # First page of posts
  admin list

  # Next page, using the cursor printed by the previous call
  admin list --type=reel --limit=20 --cursor=MjAyNC0wMy0wMVQxMjowMDowMFp8...

  # Engagement totals for reels as JSON
  admin stats --type=reel --json

OPTIONS:
  --type=<post|reel>           Feed partition (default: post)
  --limit=<n>                  Page size (list only, max 50)
  --cursor=<cursor>            Resume position (list only)
  --json                       Output as JSON
`

type options struct {
	kind    simplefeed.Kind
	limit   int
	cursor  *simplefeed.Cursor
	useJSON bool
}

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Print(usage, "\n")
		os.Exit(1)
	}

	command := os.Args[1]

	if command == "help" || command == "--help" || command == "-h" {
		fmt.Print(usage, "\n")
		os.Exit(0)
	}
	if command == "env" {
		fmt.Println(config.Usage())
		os.Exit(0)
	}

	opts, err := parseOptions(os.Args[2:])
	if err != nil {
		log.Fatalf("Invalid options: %v", err)
	}

	// Media is never touched by the admin commands.
	cfg, err := config.Load(config.WithEnv(), config.WithEnvironment("testing"), func(c *config.ServerConfig) error {
		c.MediaBackend = "memory"
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	svc, closeStores, err := cfg.BuildService(ctx)
	if err != nil {
		log.Fatalf("Failed to create feed service: %v", err)
	}
	defer closeStores()

	switch command {
	case "list":
		err = handleList(ctx, svc, opts)
	case "stats":
		err = handleStats(ctx, svc, opts)
	case "export":
		err = handleExport(ctx, svc, opts)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage, "\n")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}
}

func parseOptions(args []string) (options, error) {
	opts := options{kind: simplefeed.KindPost}

	for _, arg := range args {
		if arg == "--json" {
			opts.useJSON = true
			continue
		}

		key, value := parseFlag(arg)
		switch key {
		case "type":
			kind, err := simplefeed.ParseKind(value)
			if err != nil {
				return opts, err
			}
			opts.kind = kind
		case "limit":
			n, err := strconv.Atoi(value)
			if err != nil {
				return opts, fmt.Errorf("invalid limit %q", value)
			}
			opts.limit = n
		case "cursor":
			cursor, err := simplefeed.ParseCursor(value)
			if err != nil {
				return opts, err
			}
			opts.cursor = cursor
		case "":
			return opts, fmt.Errorf("unexpected argument %q", arg)
		}
	}
	return opts, nil
}

func parseFlag(arg string) (string, string) {
	if !strings.HasPrefix(arg, "--") {
		return "", ""
	}
	key, value, found := strings.Cut(arg[2:], "=")
	if !found {
		return key, "true"
	}
	return key, value
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func handleList(ctx context.Context, svc simplefeed.Service, opts options) error {
	page, err := svc.GetFeedPage(ctx, simplefeed.FeedRequest{
		Kind:   opts.kind,
		Cursor: opts.cursor,
		Limit:  opts.limit,
	})
	if err != nil {
		return err
	}

	if opts.useJSON {
		next := ""
		if page.NextCursor != nil {
			next = page.NextCursor.Encode()
		}
		return printJSON(map[string]interface{}{
			"items":      page.Items,
			"nextCursor": next,
			"hasMore":    page.HasMore,
		})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tOWNER\tCAPTION\tLIKES\tCOMMENTS\tCREATED\n")
	for _, content := range page.Items {
		owner := content.OwnerID.String()[:8] + "..."
		if content.Owner != nil && content.Owner.Name != "" {
			owner = truncate(content.Owner.Name, 15)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			content.ID.String()[:8]+"...",
			owner,
			truncate(content.Caption, 30),
			len(content.Likes),
			len(content.Comments),
			content.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()

	fmt.Printf("\nShown: %d", len(page.Items))
	if page.HasMore {
		fmt.Printf(" (has more, use --cursor=%s to continue)", page.NextCursor.Encode())
	}
	fmt.Println()
	return nil
}

func handleStats(ctx context.Context, svc simplefeed.Service, opts options) error {
	stats := scan.NewStats()
	result, err := scan.New(svc, nil).Scan(ctx, scan.ScanOptions{
		Kind:      opts.kind,
		Processor: stats,
	})
	if err != nil {
		return err
	}

	if opts.useJSON {
		byOwner := make(map[string]int64, len(stats.ByOwner))
		for id, n := range stats.ByOwner {
			byOwner[id.String()] = n
		}
		return printJSON(map[string]interface{}{
			"kind":     opts.kind,
			"records":  stats.Records,
			"likes":    stats.Likes,
			"comments": stats.Comments,
			"owners":   byOwner,
			"pages":    result.Pages,
		})
	}

	fmt.Printf("=== %s Statistics ===\n", strings.ToUpper(string(opts.kind)))
	fmt.Printf("\nRecords:  %d\n", stats.Records)
	fmt.Printf("Likes:    %d\n", stats.Likes)
	fmt.Printf("Comments: %d\n", stats.Comments)

	if len(stats.ByOwner) > 0 {
		fmt.Println("\nBy Owner:")
		for owner, count := range stats.ByOwner {
			fmt.Printf("  %s: %d\n", owner.String()[:8]+"...", count)
		}
	}
	return nil
}

func handleExport(ctx context.Context, svc simplefeed.Service, opts options) error {
	enc := json.NewEncoder(os.Stdout)
	result, err := scan.New(svc, nil).ForEach(ctx, opts.kind, func(ctx context.Context, content *simplefeed.ContentRecord) error {
		return enc.Encode(content)
	})
	if err != nil {
		return err
	}
	if result.TotalFailed > 0 {
		return fmt.Errorf("%d records could not be written", result.TotalFailed)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
