package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/minhbui/trovia/internal/ctl"
	"github.com/minhbui/trovia/internal/session"
	"golang.org/x/term"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := ctl.New(session.SocketPath(sessionName))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "login":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: troviactl login <username>")
			os.Exit(1)
		}
		cmdLogin(ctx, c, args[1], *jsonFlag)
	case "logout":
		cmdLogout(ctx, c)
	case "chats":
		cmdChats(ctx, c, *jsonFlag)
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: troviactl messages <partner-id>")
			os.Exit(1)
		}
		cmdMessages(ctx, c, args[1], *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: troviactl send <partner-id> <text>")
			os.Exit(1)
		}
		cmdSend(ctx, c, args[1], args[2])
	case "read":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: troviactl read <partner-id>")
			os.Exit(1)
		}
		cmdRead(ctx, c, args[1])
	case "search":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: troviactl search <query>")
			os.Exit(1)
		}
		cmdSearch(ctx, c, args[1], *jsonFlag)
	case "notifications":
		cmdNotifications(ctx, c, *jsonFlag)
	case "favorites":
		cmdFavorites(ctx, c, args[1:], *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: troviactl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                 Show session status")
	fmt.Fprintln(os.Stderr, "  login <username>       Log in (prompts for password)")
	fmt.Fprintln(os.Stderr, "  logout                 Log out and clear the session")
	fmt.Fprintln(os.Stderr, "  chats                  List conversations with unread counts")
	fmt.Fprintln(os.Stderr, "  messages <partner-id>  Show message history")
	fmt.Fprintln(os.Stderr, "  send <partner-id> <text>  Send a text message")
	fmt.Fprintln(os.Stderr, "  read <partner-id>      Mark a conversation read")
	fmt.Fprintln(os.Stderr, "  search <query>         Full-text search cached messages")
	fmt.Fprintln(os.Stderr, "  notifications          List notifications")
	fmt.Fprintln(os.Stderr, "  favorites              List favorited rooms")
	fmt.Fprintln(os.Stderr, "  favorites add <room-id>     Favorite a room")
	fmt.Fprintln(os.Stderr, "  favorites remove <room-id>  Unfavorite a room")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func cmdStatus(ctx context.Context, c *ctl.Client, jsonOut bool) {
	var resp struct {
		Session     string `json:"session"`
		Status      string `json:"status"`
		UptimeMS    int64  `json:"uptime_ms"`
		Username    string `json:"username"`
		ConvCount   int    `json:"conversation_count"`
		UnreadCount int    `json:"unread_notifications"`
	}
	if err := c.Get(ctx, "/status", &resp); err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Session: %s\n", resp.Session)
	fmt.Printf("Status:  %s\n", resp.Status)
	fmt.Printf("Uptime:  %dms\n", resp.UptimeMS)
	if resp.Username != "" {
		fmt.Printf("User:    %s\n", resp.Username)
		fmt.Printf("Chats:   %d\n", resp.ConvCount)
		fmt.Printf("Unread:  %d notifications\n", resp.UnreadCount)
	}
}

func cmdLogin(ctx context.Context, c *ctl.Client, username string, jsonOut bool) {
	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fatal(err)
	}

	var resp struct {
		UserID   string   `json:"user_id"`
		Username string   `json:"username"`
		Roles    []string `json:"roles"`
	}
	body := map[string]string{"username": username, "password": string(password)}
	if err := c.Post(ctx, "/login", body, &resp); err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Logged in as %s (%s)\n", resp.Username, resp.UserID)
}

func cmdLogout(ctx context.Context, c *ctl.Client) {
	if err := c.Post(ctx, "/logout", nil, nil); err != nil {
		fatal(err)
	}
	fmt.Println("Logged out.")
}

func cmdChats(ctx context.Context, c *ctl.Client, jsonOut bool) {
	var chats []struct {
		PartnerID   string `json:"partner_id"`
		DisplayName string `json:"display_name"`
		LastContent string `json:"last_content"`
		LastAt      int64  `json:"last_at"`
		UnreadCount int    `json:"unread_count"`
	}
	if err := c.Get(ctx, "/conversations", &chats); err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(chats)
		return
	}
	if len(chats) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, ch := range chats {
		marker := " "
		if ch.UnreadCount > 0 {
			marker = fmt.Sprintf("(%d)", ch.UnreadCount)
		}
		ts := time.UnixMilli(ch.LastAt).Format("2006-01-02 15:04")
		fmt.Printf("%-4s %-24s %s  %s\n", marker, ch.DisplayName, ts, ch.LastContent)
	}
}

func cmdMessages(ctx context.Context, c *ctl.Client, partnerID string, jsonOut bool) {
	var msgs []struct {
		ID        string `json:"id"`
		SenderID  string `json:"sender_id"`
		Content   string `json:"content"`
		ImageURL  string `json:"image_url"`
		CreatedAt int64  `json:"created_at"`
	}
	if err := c.Get(ctx, "/conversations/"+partnerID+"/messages", &msgs); err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		body := m.Content
		if body == "" && m.ImageURL != "" {
			body = "[image] " + m.ImageURL
		}
		ts := time.UnixMilli(m.CreatedAt).Format("15:04")
		fmt.Printf("%s %-12s %s\n", ts, m.SenderID, body)
	}
}

func cmdSend(ctx context.Context, c *ctl.Client, partnerID, text string) {
	var resp struct {
		ID string `json:"id"`
	}
	body := map[string]string{"partner_id": partnerID, "content": text}
	if err := c.Post(ctx, "/messages", body, &resp); err != nil {
		fatal(err)
	}
	fmt.Printf("Sent %s\n", resp.ID)
}

func cmdRead(ctx context.Context, c *ctl.Client, partnerID string) {
	if err := c.Post(ctx, "/conversations/"+partnerID+"/read", nil, nil); err != nil {
		fatal(err)
	}
	fmt.Println("Marked read.")
}

// searchPath builds the search endpoint path with the query escaped, so
// spaces and metacharacters survive the round trip.
func searchPath(query string) string {
	q := url.Values{}
	q.Set("q", query)
	return "/search?" + q.Encode()
}

func cmdSearch(ctx context.Context, c *ctl.Client, query string, jsonOut bool) {
	var results []struct {
		Message struct {
			SenderID  string `json:"sender_id"`
			CreatedAt int64  `json:"created_at"`
		} `json:"message"`
		Snippet string `json:"snippet"`
	}
	if err := c.Get(ctx, searchPath(query), &results); err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(results)
		return
	}
	for _, r := range results {
		ts := time.UnixMilli(r.Message.CreatedAt).Format("2006-01-02 15:04")
		fmt.Printf("%s %-12s %s\n", ts, r.Message.SenderID, r.Snippet)
	}
}

func cmdFavorites(ctx context.Context, c *ctl.Client, args []string, jsonOut bool) {
	if len(args) == 0 {
		var page struct {
			Content []struct {
				ID    string  `json:"id"`
				Title string  `json:"title"`
				Price float64 `json:"price"`
			} `json:"content"`
			Page       int `json:"page"`
			TotalPages int `json:"totalPages"`
		}
		if err := c.Get(ctx, "/favorites", &page); err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(page)
			return
		}
		if len(page.Content) == 0 {
			fmt.Println("No favorites.")
			return
		}
		for _, room := range page.Content {
			fmt.Printf("%-36s %10.0f  %s\n", room.ID, room.Price, room.Title)
		}
		if page.TotalPages > 1 {
			fmt.Printf("(page %d of %d)\n", page.Page+1, page.TotalPages)
		}
		return
	}

	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: troviactl favorites [add|remove] <room-id>")
		os.Exit(1)
	}
	switch args[0] {
	case "add":
		if err := c.Put(ctx, "/favorites/"+args[1], nil, nil); err != nil {
			fatal(err)
		}
		fmt.Println("Favorited.")
	case "remove":
		if err := c.Delete(ctx, "/favorites/"+args[1]); err != nil {
			fatal(err)
		}
		fmt.Println("Unfavorited.")
	default:
		fmt.Fprintln(os.Stderr, "usage: troviactl favorites [add|remove] <room-id>")
		os.Exit(1)
	}
}

func cmdNotifications(ctx context.Context, c *ctl.Client, jsonOut bool) {
	var items []struct {
		ID        string `json:"id"`
		Content   string `json:"content"`
		IsRead    bool   `json:"is_read"`
		CreatedAt int64  `json:"created_at"`
	}
	if err := c.Get(ctx, "/notifications", &items); err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(items)
		return
	}
	if len(items) == 0 {
		fmt.Println("No notifications.")
		return
	}
	for _, n := range items {
		marker := " "
		if !n.IsRead {
			marker = "*"
		}
		ts := time.UnixMilli(n.CreatedAt).Format("2006-01-02 15:04")
		fmt.Printf("%s %s %s\n", marker, ts, n.Content)
	}
}
