package app

import (
	"fmt"
	"net/http"
	"net/http/cgi"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/repocache/internal/api"
	rcapp "github.com/stacklok/repocache/internal/app"
	"github.com/stacklok/repocache/internal/cache"
	"github.com/stacklok/repocache/internal/config"
)

// CGI variables holding the caller identity, in order of precedence
var cgiIdentityVars = []string{"REMOTE_USER", "HTTP_X_FORWARDED_USER"}

func newCGICmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "cgi",
		Short: "Answer one repository list request as a CGI program",
		Long: `Serve a single request described by the CGI environment and exit. Stale cache files
are regenerated by a detached "regenerate" process so the response is not delayed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings := config.LoadSettings(v)
			logger := logr.FromContextOrDiscard(cmd.Context())

			components, err := rcapp.NewComponents(cmd.Context(),
				rcapp.WithSettings(settings),
				rcapp.WithSpawner(cache.ProcessSpawner{Args: []string{"--log-level=" + settings.LogLevel}}),
				rcapp.WithIdentities(api.EnvIdentities(os.Getenv, cgiIdentityVars...)),
			)
			if err != nil {
				return fmt.Errorf("failed to build components: %w", err)
			}

			handler := api.WithLogger(logger)(http.HandlerFunc(components.Handler.ServeRepos))
			if err := cgi.Serve(handler); err != nil {
				return fmt.Errorf("failed to serve CGI request: %w", err)
			}
			return nil
		},
	}
}
