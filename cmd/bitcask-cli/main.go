// Command bitcask-cli is an interactive shell for talking to a running
// bitcaskd daemon over the TCP wire protocol.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/kvforge/bitcask/client"
)

const (
	defaultHost = "127.0.0.1"
	defaultPort = 7070
)

func main() {
	host := flag.String("host", defaultHost, "bitcaskd host")
	port := flag.Int("port", defaultPort, "bitcaskd port")
	flag.Parse()

	c, err := client.Connect(client.WithHost(*host), client.WithPort(*port))
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	fmt.Printf("Connected to %s:%d\n", *host, *port)
	fmt.Println("Type commands. 'help' for information or 'exit' to quit.")

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("input error:", err)
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			return
		}

		cmd, key, value, err := splitCommand(line)
		if err != nil {
			fmt.Println("parse error:", err)
			continue
		}

		resp, err := c.Execute(cmd, key, value)
		if err != nil {
			log.Fatal(err)
		}

		fmt.Println(resp)
	}
}

// splitCommand tokenizes a line of input, honoring quoted arguments, and
// maps the result onto the (cmd, key, value) triple the wire protocol
// expects. A SET value may contain spaces, so everything after the key is
// rejoined with single spaces rather than treated as further tokens.
func splitCommand(line string) (cmd, key, value string, err error) {
	tokens, err := shellquote.Split(line)
	if err != nil {
		return "", "", "", fmt.Errorf("tokenize %q: %w", line, err)
	}
	if len(tokens) == 0 {
		return "", "", "", fmt.Errorf("empty command")
	}

	cmd = tokens[0]
	if len(tokens) > 1 {
		key = tokens[1]
	}
	if len(tokens) > 2 {
		value = strings.Join(tokens[2:], " ")
	}

	return cmd, key, value, nil
}
