// kashef-monitor tails the websocket feed of a running kashef server and
// pretty-prints every committed turn.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nvakili/kashef/api/protocol"
	"github.com/nvakili/kashef/discovery"
	"github.com/nvakili/kashef/shared/backoff"
)

// ANSI colors
const (
	reset   = "\033[0m"
	bold    = "\033[1m"
	dim     = "\033[2m"
	red     = "\033[31m"
	green   = "\033[32m"
	yellow  = "\033[33m"
	blue    = "\033[34m"
	magenta = "\033[35m"
	cyan    = "\033[36m"
	white   = "\033[37m"
	bgGray  = "\033[48;5;236m"
)

var typeColors = map[protocol.MessageType]string{
	protocol.TypeTurn:  cyan,
	protocol.TypeFinal: green,
	protocol.TypeError: red,
}

type rawMessage struct {
	data []byte
	ts   time.Time
}

func main() {
	url := flag.String("url", "ws://localhost:8080/api/v1/ws", "WebSocket URL")
	conversation := flag.String("conversation", "", "follow a single conversation instead of everything")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	dialURL := *url
	if *conversation == "" && !strings.Contains(dialURL, "role=") {
		sep := "?"
		if strings.Contains(dialURL, "?") {
			sep = "&"
		}
		dialURL += sep + "role=monitor"
	}

	fmt.Printf("%s%s╔══════════════════════════════════════╗%s\n", bold, blue, reset)
	fmt.Printf("%s%s║        Kashef Turn Monitor           ║%s\n", bold, blue, reset)
	fmt.Printf("%s%s╚══════════════════════════════════════╝%s\n", bold, blue, reset)
	fmt.Printf("%sConnecting to: %s%s%s\n", dim, reset, dialURL, reset)

	msgNum := 0
	for {
		conn, err := dialWithRetry(dialURL, interrupt)
		if err != nil {
			fmt.Printf("\n%s%s─── %v ───%s\n", dim, yellow, err, reset)
			return
		}

		fmt.Printf("%s%s✓ Connected%s\n", bold, green, reset)

		if *conversation != "" {
			sub := protocol.NewEnvelope(*conversation, protocol.TypeSubscribe,
				protocol.SubscribeBody{ConversationID: *conversation})
			data, err := sub.Encode()
			if err == nil {
				err = conn.WriteMessage(websocket.BinaryMessage, data)
			}
			if err != nil {
				conn.Close()
				fmt.Printf("%s✗ Failed to subscribe: %v%s\n", red, err, reset)
				fmt.Printf("%s%s─── reconnecting... ───%s\n", dim, yellow, reset)
				continue
			}
			fmt.Printf("%s%s✓ Following %s%s\n\n", bold, green, *conversation, reset)
		} else {
			fmt.Printf("%s%s✓ Monitoring all conversations%s\n\n", bold, green, reset)
		}

		// Receiver goroutine
		msgCh := make(chan rawMessage, 256)
		go func() {
			defer close(msgCh)
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					fmt.Printf("\n%s✗ Read error: %v%s\n", red, err, reset)
					return
				}
				msgCh <- rawMessage{data: raw, ts: time.Now()}
			}
		}()

		disconnected := false
		for !disconnected {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					disconnected = true
				} else {
					msgNum++
					printMessage(msgNum, msg)
				}
			case <-interrupt:
				fmt.Printf("\n%s%s─── interrupted ───%s\n", dim, yellow, reset)
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
				return
			}
		}

		conn.Close()
		fmt.Printf("%s%s─── connection lost, reconnecting... ───%s\n\n", dim, yellow, reset)
	}
}

func dialWithRetry(url string, interrupt <-chan os.Signal) (*websocket.Conn, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-interrupt:
			cancel()
		case <-ctx.Done():
		}
	}()

	var conn *websocket.Conn
	err := backoff.Retry(ctx, backoff.Standard, func(ctx context.Context, attempt int) error {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			fmt.Printf("%s  dial attempt %d failed: %v%s\n", dim, attempt, err, reset)
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("interrupted")
		}
		return nil, err
	}
	return conn, nil
}

func printMessage(num int, msg rawMessage) {
	timestamp := msg.ts.Format("15:04:05.000")

	env, err := protocol.DecodeEnvelope(msg.data)
	if err != nil {
		fmt.Printf("%s%s#%d%s %s%s%s %s✗ undecodable frame (%d bytes): %v%s\n\n",
			dim, bgGray, num, reset, dim, timestamp, reset, red, len(msg.data), err, reset)
		return
	}

	color := typeColors[env.Type]
	if color == "" {
		color = white
	}

	fmt.Printf("%s%s#%d%s %s%s%s %s%s%-6s%s",
		dim, bgGray, num, reset,
		dim, timestamp, reset,
		bold, color, env.Type, reset)
	if env.ConversationID != "" {
		fmt.Printf(" %s%s%s", magenta, env.ConversationID, reset)
	}
	fmt.Println()

	switch env.Type {
	case protocol.TypeTurn, protocol.TypeFinal:
		printTurn(env)
	case protocol.TypeError:
		body, err := protocol.DecodeBody[protocol.ErrorBody](env)
		if err == nil {
			fmt.Printf("  %s%s%s\n", red, body.Message, reset)
		}
	}
	fmt.Println()
}

func printTurn(env *protocol.Envelope) {
	turn, err := protocol.DecodeBody[discovery.TurnResponse](env)
	if err != nil {
		fmt.Printf("  %s(body undecodable: %v)%s\n", dim, err, reset)
		return
	}

	fmt.Printf("  %sturn %d%s %s\n", yellow, turn.Turn, reset, truncate(turn.Message, 160))
	if turn.StopReason != "" {
		fmt.Printf("  %sstop:%s %s%s%s", dim, reset, bold, turn.StopReason, reset)
		if turn.CandidateID != "" {
			fmt.Printf(" %s→%s %s%s%s", dim, reset, green, turn.CandidateID, reset)
		}
		fmt.Println()
	}
	for i, opt := range turn.Options {
		fmt.Printf("  %s%d.%s %s %s(%s, score %.2f)%s\n",
			cyan, i+1, reset, opt.ProductName, dim, opt.ID, opt.MatchScore, reset)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
