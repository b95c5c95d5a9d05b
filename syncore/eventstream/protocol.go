package eventstream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/LerianStudio/lib-syncore/syncore/transport"
)

// Protocol describes how a server signals an empty stream and where the first
// event lives.
type Protocol struct {
	Name string
	// NoEventsStatus means the stream has no events yet.
	NoEventsStatus int
	// PointerStatus, when set, is a redirect whose Location is the first event.
	PointerStatus int
}

var (
	// ProtocolNoContent answers 204 while empty and points at the first event
	// with a 200 body carrying only next.
	ProtocolNoContent = Protocol{Name: "no-content", NoEventsStatus: http.StatusNoContent}
	// ProtocolRedirect answers 400 while empty and redirects to the first event.
	ProtocolRedirect = Protocol{Name: "redirect", NoEventsStatus: http.StatusBadRequest, PointerStatus: http.StatusFound}
)

// ParseProtocol resolves a protocol by name.
func ParseProtocol(name string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ProtocolNoContent.Name:
		return ProtocolNoContent, nil
	case ProtocolRedirect.Name:
		return ProtocolRedirect, nil
	default:
		return Protocol{}, fmt.Errorf("unknown eventstream protocol %q", name)
	}
}

func (p Protocol) noEvents(resp transport.Response) bool {
	return !resp.Failed() && resp.Status == p.NoEventsStatus
}

func (p Protocol) redirect(resp transport.Response) bool {
	return p.PointerStatus != 0 && !resp.Failed() && resp.Status == p.PointerStatus
}

// eventShaped reports whether resp should carry an event resource body.
func (p Protocol) eventShaped(resp transport.Response) bool {
	return resp.Success() && !p.noEvents(resp)
}

// decode extracts the resource from resp. Redirects become a next-only resource.
func (p Protocol) decode(resp transport.Response) (Resource, error) {
	if p.redirect(resp) {
		return Resource{Next: resolve(resp.URI, resp.Header("Location"))}, nil
	}

	if !p.eventShaped(resp) || len(strings.TrimSpace(string(resp.Body))) == 0 {
		return Resource{}, nil
	}

	var resource Resource
	if err := json.Unmarshal(resp.Body, &resource); err != nil {
		return Resource{}, fmt.Errorf("decode event resource: %w", err)
	}

	return resource, nil
}

// resolve makes location absolute when base is absolute.
func resolve(base, location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return ""
	}

	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return location
	}

	ref, err := url.Parse(location)
	if err != nil {
		return location
	}

	return baseURL.ResolveReference(ref).String()
}
