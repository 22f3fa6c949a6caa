package discovery

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

const (
	ssdpAddr   = "239.255.255.250:1900"
	ssdpTarget = "urn:schemas-upnp-org:device:ZonePlayer:1"
)

// Response is one M-SEARCH reply.
type Response struct {
	Location string
	USN      string
	Headers  map[string]string
	FromIP   string
}

// Discover sends passes M-SEARCH requests passInterval apart, then
// collects replies until timeout. Replies are deduplicated by USN.
func Discover(ctx context.Context, passes int, passInterval, timeout time.Duration) ([]Response, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	addr, err := net.ResolveUDPAddr("udp4", ssdpAddr)
	if err != nil {
		return nil, err
	}

	for pass := 0; pass < passes; pass++ {
		if _, err := conn.WriteTo(searchMessage(), addr); err != nil {
			return nil, err
		}
		if pass == passes-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(passInterval):
		}
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var responses []Response
	buf := make([]byte, 2048)
	for {
		n, raddr, err := conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return responses, nil
			}
			return responses, err
		}

		resp := parseResponse(string(buf[:n]))
		if resp.Location == "" || resp.USN == "" {
			continue
		}
		if _, dup := seen[resp.USN]; dup {
			continue
		}
		seen[resp.USN] = struct{}{}
		resp.FromIP = raddr.String()
		responses = append(responses, resp)
	}
}

func searchMessage() []byte {
	return []byte(strings.Join([]string{
		"M-SEARCH * HTTP/1.1",
		"HOST: " + ssdpAddr,
		`MAN: "ssdp:discover"`,
		"MX: 2",
		"ST: " + ssdpTarget,
		"",
		"",
	}, "\r\n"))
}

// parseResponse reads the header block of an SSDP reply. Header names
// are canonicalized to upper case.
func parseResponse(raw string) Response {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	headers := make(map[string]string)

	scanner.Scan() // status line
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.ToUpper(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	return Response{
		Location: headers["LOCATION"],
		USN:      headers["USN"],
		Headers:  headers,
	}
}
