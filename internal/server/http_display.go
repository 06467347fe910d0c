package server

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"resumereview/internal/utils"
)

// displayServerInfo prints the endpoints and the protection settings
func (s *Server) displayServerInfo() {
	s.writeServerInfo(os.Stdout)
}

func (s *Server) writeServerInfo(out io.Writer) {
	fmt.Fprintln(out, "Available endpoints:")
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, rt := range s.routes() {
		method, path, _ := strings.Cut(rt.pattern, " ")
		fmt.Fprintf(tw, "  %s\t%s\t- %s\n", method, path, rt.summary)
	}
	_ = tw.Flush()

	fmt.Fprintf(out, "Download mode: %s\n", s.downloadMode())

	if len(s.APIKeys) > 0 {
		fmt.Fprintf(out, "API authentication: ENABLED (%d keys configured)\n", len(s.APIKeys))
		fmt.Fprintln(out, "Include 'X-API-Key: <your-key>' header in requests to /api/*")
	} else {
		fmt.Fprintln(out, "API authentication: DISABLED (no API keys configured)")
		fmt.Fprintln(out, "WARNING: API endpoints are publicly accessible!")
	}

	if s.MaxRequestSize > 0 {
		fmt.Fprintf(out, "Request size limit: %s\n", utils.FormatFileSize(s.MaxRequestSize))
	} else {
		fmt.Fprintln(out, "Request size limit: DISABLED")
	}

	if s.RateLimit == nil || !s.RateLimit.Enabled {
		fmt.Fprintln(out, "Rate limiting: DISABLED")
		return
	}
	var scopes []string
	if s.RateLimit.ByAPIKey {
		scopes = append(scopes, "API key")
	}
	if s.RateLimit.ByIP {
		scopes = append(scopes, "IP address")
	}
	if len(scopes) == 0 {
		scopes = []string{"server"}
	}
	fmt.Fprintf(out, "Rate limiting: ENABLED (%d requests/min, burst %d, per %s)\n",
		s.RateLimit.RequestsPerMin, s.RateLimit.BurstCapacity, strings.Join(scopes, " and "))
}
