package main

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type serverMessage struct {
	Role           string `json:"role"`
	Content        string `json:"content,omitempty"`
	PromptDetected *bool  `json:"promptDetected,omitempty"`
}

var (
	serverURL string
	saveDir   string
)

var rootCmd = &cobra.Command{
	Use:   "chatclient",
	Short: "Chat with a relay server from the terminal",
	Long: `chatclient opens a WebSocket to the relay's /chat endpoint, sends each line
read from stdin as one chat turn, and prints the events it receives.
Inline images are written to --save-dir when it is set.`,
	Args: cobra.NoArgs,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVarP(&serverURL, "server", "s", "http://localhost:3000", "Server URL (http/https)")
	rootCmd.Flags().StringVar(&saveDir, "save-dir", "", "Directory to save received images in (optional)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Convert HTTP URL to WebSocket URL
	wsURL := strings.Replace(serverURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL = strings.TrimSuffix(wsURL, "/") + "/chat"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("WebSocket connection failed: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		receive(conn)
	}()

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("\nYou: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return fmt.Errorf("error reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.ToLower(input) == "exit" || strings.ToLower(input) == "quit" {
			fmt.Println("Goodbye!")
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		}

		select {
		case <-done:
			return errors.New("connection closed by server")
		default:
		}

		if err := conn.WriteMessage(websocket.TextMessage, []byte(input)); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}
}

func receive(conn *websocket.Conn) {
	images := 0
	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				fmt.Printf("\nError reading response: %v\n", err)
			}
			return
		}

		switch msg.Role {
		case "user":
			fmt.Print("Assistant: ")
		case "ai":
			fmt.Print(msg.Content)
		case "ai_complete":
			fmt.Println()
			if msg.PromptDetected != nil && *msg.PromptDetected {
				fmt.Println("(generating image...)")
			}
		case "image":
			images++
			describeImage(msg.Content, images)
		}
	}
}

func describeImage(content string, n int) {
	if !strings.HasPrefix(content, "data:") {
		fmt.Printf("[image %d: %s]\n", n, content)
		return
	}

	contentType, data, err := decodeDataURI(content)
	if err != nil {
		fmt.Printf("[image %d: could not decode: %v]\n", n, err)
		return
	}

	if saveDir == "" {
		fmt.Printf("[image %d: %s, %d bytes]\n", n, contentType, len(data))
		return
	}

	ext := ".img"
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	path := filepath.Join(saveDir, fmt.Sprintf("image-%s-%d%s", time.Now().Format("20060102-150405"), n, ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Printf("[image %d: could not save: %v]\n", n, err)
		return
	}
	fmt.Printf("[image %d saved to %s]\n", n, path)
}

func decodeDataURI(uri string) (string, []byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return "", nil, errors.New("missing data separator")
	}
	contentType, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return "", nil, errors.New("not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, err
	}
	return contentType, data, nil
}
