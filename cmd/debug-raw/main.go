package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/route-beacon/bird-collector/internal/birdc"
	"github.com/route-beacon/bird-collector/internal/control"
	"github.com/twmb/franz-go/pkg/kgo"
)

func main() {
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "--events" {
		tailEvents(args[1:])
		return
	}

	socket := "/var/run/bird/bird.ctl"
	if len(args) > 1 && args[0] == "--socket" {
		socket = args[1]
		args = args[2:]
	}
	cmd := "show status"
	if len(args) > 0 {
		cmd = strings.Join(args, " ")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reply, err := control.NewSocket(socket, 10*time.Second).Query(ctx, cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query %q: %v\n", cmd, err)
		os.Exit(1)
	}

	fmt.Printf("=== %s (%d bytes) ===\n", cmd, len(reply))
	dumpReply(reply)
}

// dumpReply prints every line with the code it carries or inherits and the
// class that code falls in.
func dumpReply(reply string) {
	lines := birdc.NewLines(reply)
	code := -1
	n := 0
	for {
		raw, ok := lines.Next()
		if !ok {
			break
		}
		n++
		line := birdc.ParseLine(raw)
		marker := " "
		if line.HasCode {
			code = line.Code
			marker = "*"
		}
		fmt.Printf("%4d %s %04d %-9s %s\n", n, marker, max(code, 0), codeClass(code), line.Text)
	}
	fmt.Printf("Total lines: %d\n", n)
}

func codeClass(code int) string {
	switch {
	case code < 0:
		return "none"
	case birdc.IsError(code):
		return "error"
	case birdc.IsSuccess(code):
		return "success"
	case birdc.IsIgnored(code):
		return "ignored"
	default:
		return "data"
	}
}

// tailEvents prints peer events already on the topic and exits once the
// topic is drained.
func tailEvents(args []string) {
	broker := "localhost:29092"
	topic := "bird.peer-events"
	if len(args) > 0 {
		broker = args[0]
	}
	if len(args) > 1 {
		topic = args[1]
	}

	cl, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.ConsumerGroup(fmt.Sprintf("debug-raw-%d", time.Now().UnixNano())),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kafka client: %v\n", err)
		os.Exit(1)
	}
	defer cl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msgNum := 0
	for {
		fetches := cl.PollRecords(ctx, 100)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			break
		}

		fetches.EachRecord(func(rec *kgo.Record) {
			msgNum++
			fmt.Printf("=== Kafka msg %d (partition=%d offset=%d key=%s) ===\n",
				msgNum, rec.Partition, rec.Offset, rec.Key)

			var ev map[string]any
			if err := json.Unmarshal(rec.Value, &ev); err != nil {
				fmt.Printf("  decode error: %v\n  raw: %s\n", err, rec.Value)
				return
			}
			fmt.Printf("  %v: %q -> %q (up=%v) at %v\n",
				ev["peer"], ev["old_state"], ev["new_state"], ev["up"], ev["at"])
		})

		if msgNum > 0 && len(fetches.Records()) == 0 {
			break
		}
	}

	fmt.Printf("Total Kafka messages: %d\n", msgNum)
}
