package rpc

import (
	"context"
	"fmt"

	"github.com/codechat-live/codechat-server/internal/browser"
	"github.com/codechat-live/codechat-server/internal/config"
	"github.com/codechat-live/codechat-server/internal/logging"
	"github.com/codechat-live/codechat-server/internal/manager"
)

// shuttingDownText answers editors once the drain has begun.
const shuttingDownText = "The server is shutting down."

// selfRedirectPage is returned for LocationHTML. Editors display it in an
// embedded browser, which then navigates itself to the viewer.
const selfRedirectPage = `
<!DOCTYPE html>
<html>
    <head>
        <script>window.location = "%s";</script>
    </head>
    <body></body>
</html>`

// ServiceOptions configures a Service. Manager is required.
type ServiceOptions struct {
	Manager *manager.RenderManager
	Env     config.Environment
	Log     logging.Logger

	// OpenBrowser overrides how viewer windows are opened. Nil means the
	// system browser.
	OpenBrowser func(url string) error
}

// Service implements the editor operations against a RenderManager. All
// methods are safe for concurrent use and report failures as strings, the
// way editor plug-ins expect them.
type Service struct {
	manager     *manager.RenderManager
	env         config.Environment
	log         logging.Logger
	openBrowser func(url string) error
}

func NewService(opts ServiceOptions) *Service {
	log := opts.Log
	if log == nil {
		log = logging.NewNop()
	}
	open := opts.OpenBrowser
	if open == nil {
		open = browser.Open
	}
	return &Service{
		manager:     opts.Manager,
		env:         opts.Env,
		log:         log.WithComponent("rpc"),
		openBrowser: open,
	}
}

// GetClient allocates a client id and places a viewer according to
// location.
func (s *Service) GetClient(ctx context.Context, location int) RenderClientReturn {
	switch location {
	case LocationURL, LocationHTML, LocationBrowser:
	default:
		return RenderClientReturn{HTML: "", ID: -1, Error: fmt.Sprintf("Invalid location %d", location)}
	}

	id, err := s.manager.CreateClient()
	if err != nil {
		return RenderClientReturn{HTML: "", ID: -1, Error: shuttingDownText}
	}

	url := s.env.ViewerURL(int(id))
	s.log.Info(ctx, "client created", "client_id", int(id), "location", location)

	switch location {
	case LocationURL:
		return RenderClientReturn{HTML: url, ID: int(id)}
	case LocationHTML:
		return RenderClientReturn{HTML: fmt.Sprintf(selfRedirectPage, url), ID: int(id)}
	default:
		if err := s.openBrowser(url); err != nil {
			s.log.Warn(ctx, err, "cannot open browser", "url", url)
		}
		return RenderClientReturn{HTML: "", ID: int(id)}
	}
}

// StartRender submits one render. Negative unknown ids are the editor
// pre-declared form: they are created on first use and a viewer window is
// opened for them.
func (s *Service) StartRender(ctx context.Context, text, path string, id int, isDirty bool) string {
	cid := manager.ClientID(id)
	if s.manager.StartRender(text, path, cid, isDirty) {
		return ""
	}

	if id < 0 {
		if err := s.manager.AdoptClient(cid); err == nil {
			url := s.env.ViewerURL(id)
			s.log.Info(ctx, "client adopted", "client_id", id)
			if err := s.openBrowser(url); err != nil {
				s.log.Warn(ctx, err, "cannot open browser", "url", url)
			}
			if s.manager.StartRender(text, path, cid, isDirty) {
				return ""
			}
		}
	}

	return fmt.Sprintf("Unknown client id %d.", id)
}

// StopClient begins the per-client shutdown choreography: the shutdown
// command goes on the mailbox now, and a fallback delete fires if no
// viewer consumes it.
func (s *Service) StopClient(ctx context.Context, id int) string {
	if s.manager.ShutdownClient(manager.ClientID(id)) {
		s.log.Info(ctx, "client stopping", "client_id", id)
		return ""
	}
	return fmt.Sprintf("Unknown client id %d.", id)
}

// Ping reports liveness: empty when healthy, an explanation while the
// server drains.
func (s *Service) Ping(ctx context.Context) string {
	if s.manager.ShuttingDown() {
		return shuttingDownText
	}
	return ""
}
