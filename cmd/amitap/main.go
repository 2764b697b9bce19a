// amitap captures raw AMI traffic to a file for offline debugging of the
// correlation engine, and can sanitize a capture before it is shared.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sweeney/asterisk-callcenter/internal/ami"
)

// trackedEvents are the event types the correlation engine consumes; -only
// restricts a capture to these.
var trackedEvents = map[string]bool{
	"DialBegin":            true,
	"Hangup":               true,
	"BridgeEnter":          true,
	"BridgeDestroy":        true,
	"Hold":                 true,
	"Unhold":               true,
	"QueueParams":          true,
	"QueueMember":          true,
	"QueueCallerJoin":      true,
	"QueueCallerLeave":     true,
	"QueueCallerAbandon":   true,
	"QueueStatusComplete":  true,
	"ContactStatus":        true,
	"EndpointList":         true,
	"EndpointListComplete": true,
}

func main() {
	host := flag.String("host", "127.0.0.1", "Asterisk AMI host")
	port := flag.Int("port", 5038, "Asterisk AMI port")
	user := flag.String("user", "admin", "AMI username")
	secret := flag.String("secret", "", "AMI secret")
	outDir := flag.String("outdir", "captures", "Output directory for captures")
	only := flag.Bool("only", false, "Capture only events the engine tracks")
	sanitize := flag.String("sanitize", "", "Sanitize a capture file in-place (keeps .bak)")
	flag.Parse()

	if *sanitize != "" {
		if err := sanitizeFile(*sanitize); err != nil {
			fmt.Fprintf(os.Stderr, "sanitize error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("sanitized:", *sanitize)
		return
	}

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "error: -secret is required")
		flag.Usage()
		os.Exit(1)
	}

	if err := capture(*host, *port, *user, *secret, *outDir, *only); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func capture(host string, port int, user, secret, outDir string, only bool) error {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	fmt.Printf("connecting to %s...\n", addr)

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	filename := filepath.Join(outDir, time.Now().Format("20060102-150405")+".raw")
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer f.Close()

	fmt.Printf("writing to %s\n", filename)

	reader := bufio.NewReader(conn)
	banner, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading banner: %w", err)
	}

	loginCmd := fmt.Sprintf("Action: Login\r\nUsername: %s\r\nSecret: %s\r\n\r\n", user, secret)
	if _, err := conn.Write([]byte(loginCmd)); err != nil {
		return fmt.Errorf("sending login: %w", err)
	}

	fmt.Println("streaming events (ctrl+c to stop)...")

	if !only {
		f.WriteString(banner)
		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 64*1024), 256*1024)
		for scanner.Scan() {
			f.WriteString(scanner.Text() + "\n")
		}
		return scanner.Err()
	}

	// Filtered mode decodes blocks and re-emits only tracked event types,
	// which keeps replay files small on busy switches.
	parser := ami.NewParser(reader)
	for {
		evt, ok := parser.Next()
		if !ok {
			return parser.Err()
		}
		if !trackedEvents[evt.Type()] {
			continue
		}
		f.WriteString(evt.String())
	}
}

var (
	ipPattern       = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	phonePattern    = regexp.MustCompile(`\b1?\d{10}\b`)
	secretPattern   = regexp.MustCompile(`(?i)(Secret:\s*).+`)
	passwordPattern = regexp.MustCompile(`(?i)(Password:\s*).+`)
)

// sanitizeFile redacts credentials, addresses, and caller numbers so a
// capture can leave the machine it was taken on.
func sanitizeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	bakPath := path + ".bak"
	if err := os.WriteFile(bakPath, data, 0o644); err != nil {
		return fmt.Errorf("creating backup: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		line = secretPattern.ReplaceAllString(line, "${1}REDACTED")
		line = passwordPattern.ReplaceAllString(line, "${1}REDACTED")

		line = ipPattern.ReplaceAllStringFunc(line, func(ip string) string {
			if ip == "127.0.0.1" {
				return ip
			}
			return "10.0.0.1"
		})

		if strings.Contains(line, "CallerID") || strings.Contains(line, "ConnectedLine") {
			line = phonePattern.ReplaceAllString(line, "15550001234")
		}

		lines[i] = line
	}

	return os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644)
}
