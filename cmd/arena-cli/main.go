// arena-cli is an organizer console for a running arena server. It drives
// the admin endpoints: creating and starting contests, finishing them,
// managing whitelists and disqualifications, and inspecting state.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const defaultTimeout = 30 * time.Second

func main() {
	baseURL := flag.String("base", "http://127.0.0.1:8090", "Arena server base URL")
	adminToken := flag.String("token", "", "Admin token (X-Admin-Token header)")
	flag.Parse()

	client := newAPIClient(*baseURL, *adminToken, defaultTimeout)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "arena> ",
		HistoryFile:     os.TempDir() + "/arena_cli_history",
		InterruptPrompt: "^C",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("create"),
			readline.PcItem("start"),
			readline.PcItem("finish"),
			readline.PcItem("state"),
			readline.PcItem("disqualify"),
			readline.PcItem("wl-add"),
			readline.PcItem("wl-list"),
			readline.PcItem("wl-remove"),
			readline.PcItem("help"),
			readline.PcItem("exit"),
		),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init readline failed: %v\n", err)
		return
	}
	defer func() { _ = rl.Close() }()

	ctx := context.Background()
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		if line == "help" {
			printHelp()
			continue
		}
		if err := dispatch(ctx, client, line); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func printHelp() {
	fmt.Print(`commands:
  create <duration_min> <scoring> <access> <task_id>...   create a contest
  start <contest_id>                                      start a contest
  finish <contest_id>                                     finish a contest
  state <contest_id>                                      show live or archived state
  disqualify <contest_id> <participant_id>                disqualify a participant
  wl-add <contest_id> <nickname> <password> [org]         add a whitelist entry
  wl-list <contest_id>                                    list whitelist entries
  wl-remove <contest_id> <nickname>                       remove a whitelist entry
  exit                                                    quit
`)
}

func dispatch(ctx context.Context, client *apiClient, line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command: %w", err)
	}
	cmd, args := args[0], args[1:]

	switch cmd {
	case "create":
		return runCreate(ctx, client, args)
	case "start":
		return runSimple(ctx, client, args, "/start")
	case "finish":
		return runSimple(ctx, client, args, "/finish")
	case "state":
		return runState(ctx, client, args)
	case "disqualify":
		return runDisqualify(ctx, client, args)
	case "wl-add":
		return runWhitelistAdd(ctx, client, args)
	case "wl-list":
		return runWhitelistList(ctx, client, args)
	case "wl-remove":
		return runWhitelistRemove(ctx, client, args)
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
}

func runCreate(ctx context.Context, client *apiClient, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: create <duration_min> <scoring> <access> <task_id>...")
	}
	duration, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid duration %q", args[0])
	}
	taskIDs := make([]int64, 0, len(args)-3)
	for _, raw := range args[3:] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid task id %q", raw)
		}
		taskIDs = append(taskIDs, id)
	}
	body := map[string]interface{}{
		"duration_minutes": duration,
		"scoring":          args[1],
		"access":           args[2],
		"task_ids":         taskIDs,
	}
	data, err := client.do(ctx, http.MethodPost, "/api/v1/contests", body)
	if err != nil {
		return err
	}
	fmt.Println(prettyJSON(data))
	return nil
}

func runSimple(ctx context.Context, client *apiClient, args []string, action string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: <command> <contest_id>")
	}
	data, err := client.do(ctx, http.MethodPost, "/api/v1/contests/"+args[0]+action, nil)
	if err != nil {
		return err
	}
	fmt.Println(prettyJSON(data))
	return nil
}

func runState(ctx context.Context, client *apiClient, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: state <contest_id>")
	}
	data, err := client.do(ctx, http.MethodGet, "/api/v1/contests/"+args[0]+"/state", nil)
	if err != nil {
		return err
	}
	fmt.Println(prettyJSON(data))
	return nil
}

func runDisqualify(ctx context.Context, client *apiClient, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: disqualify <contest_id> <participant_id>")
	}
	data, err := client.do(ctx, http.MethodPost,
		"/api/v1/contests/"+args[0]+"/disqualify/"+args[1], nil)
	if err != nil {
		return err
	}
	fmt.Println(prettyJSON(data))
	return nil
}

func runWhitelistAdd(ctx context.Context, client *apiClient, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: wl-add <contest_id> <nickname> <password> [org]")
	}
	body := map[string]string{
		"nickname": args[1],
		"password": args[2],
	}
	if len(args) > 3 {
		body["organization"] = args[3]
	}
	data, err := client.do(ctx, http.MethodPost, "/api/v1/contests/"+args[0]+"/whitelist", body)
	if err != nil {
		return err
	}
	fmt.Println(prettyJSON(data))
	return nil
}

func runWhitelistList(ctx context.Context, client *apiClient, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: wl-list <contest_id>")
	}
	data, err := client.do(ctx, http.MethodGet, "/api/v1/contests/"+args[0]+"/whitelist", nil)
	if err != nil {
		return err
	}
	fmt.Println(prettyJSON(data))
	return nil
}

func runWhitelistRemove(ctx context.Context, client *apiClient, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: wl-remove <contest_id> <nickname>")
	}
	data, err := client.do(ctx, http.MethodDelete,
		"/api/v1/contests/"+args[0]+"/whitelist/"+args[1], nil)
	if err != nil {
		return err
	}
	fmt.Println(prettyJSON(data))
	return nil
}
