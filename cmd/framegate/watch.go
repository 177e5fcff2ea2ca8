package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-framegate/internal/log"
	"github.com/teslashibe/go-framegate/pkg/display"
	"github.com/teslashibe/go-framegate/pkg/pipeline"
	"github.com/teslashibe/go-framegate/pkg/protocol"
	"github.com/teslashibe/go-framegate/pkg/web"
)

func newWatchCmd() *cobra.Command {
	var (
		url   string
		stats bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail results from a running dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return watch(cmd.Context(), url, stats)
		},
	}
	cmd.Flags().StringVar(&url, "url", "ws://localhost:8080/ws/status", "Dashboard status WebSocket URL")
	cmd.Flags().BoolVar(&stats, "stats", false, "Also print periodic pipeline counters")
	return cmd
}

func watch(ctx context.Context, url string, showStats bool) error {
	logger := log.Component("watch")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", url, err)
	}
	defer conn.Close()
	logger.Info("watching", "url", url)

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			logger.Warn("parse error", "error", err)
			continue
		}
		if line := describe(msg, showStats); line != "" {
			fmt.Println(line)
		}
	}
}

// describe renders one status message as a single line; an empty string
// means the message is not shown.
func describe(msg *protocol.Message, showStats bool) string {
	switch msg.Type {
	case protocol.TypeResult:
		var u display.Update
		if err := msg.ParseData(&u); err != nil {
			return "result: " + err.Error()
		}
		top := make([]string, 0, len(u.Top))
		for _, e := range u.Top {
			top = append(top, e.Title+" "+e.Confidence)
		}
		if len(top) == 0 {
			top = append(top, "-")
		}
		return fmt.Sprintf("#%d %s rot %s %s [%s/%s] %s",
			u.Frame, u.FrameSize, u.Rotation, u.Inference, u.Device, u.Threads, strings.Join(top, ", "))

	case protocol.TypeConfig:
		var c web.ConfigView
		if err := msg.ParseData(&c); err != nil {
			return "config: " + err.Error()
		}
		return fmt.Sprintf("config: device %s threads %s", c.Device, c.Label)

	case protocol.TypeStats:
		if !showStats {
			return ""
		}
		var st pipeline.Stats
		if err := msg.ParseData(&st); err != nil {
			return "stats: " + err.Error()
		}
		return fmt.Sprintf("stats: admitted %d dropped %d processed %d failed %d (%.1f%% dropped)",
			st.Admitted, st.Dropped, st.Processed, st.Failed, 100*st.DropRate())
	}
	return ""
}
