package casper

import (
	"os"
	"path/filepath"

	"github.com/toruslabs/casper-provider-go/pkg/jsonrpc"
)

// SiteMetadata identifies the embedding application to the wallet runtime.
// The wallet surfaces it wherever it attributes requests to their origin.
type SiteMetadata struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// defaultSiteMetadata derives metadata from the running process: the
// executable name and a host-scoped pseudo-origin.
func defaultSiteMetadata() SiteMetadata {
	name := filepath.Base(os.Args[0])
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return SiteMetadata{
		Name: name,
		URL:  "local://" + host,
	}
}

// sendSiteMetadata announces the embedding application to the wallet,
// fire-and-forget. Called once after the initial state fetch settles;
// failures are logged and swallowed.
func (p *Provider) sendSiteMetadata() {
	if p.cfg.DisableSiteMetadata {
		return
	}

	meta := p.cfg.SiteMetadata
	if meta == (SiteMetadata{}) {
		meta = defaultSiteMetadata()
	}

	notif, err := jsonrpc.NewNotification(MethodSendSiteMetadata, meta)
	if err != nil {
		p.lg.Warn("Failed to build site metadata notification", "error", err)
		return
	}
	if err := p.engine.Notify(notif); err != nil {
		p.lg.Warn("Failed to send site metadata", "error", err)
	}
}
