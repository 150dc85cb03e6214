package app

import (
	"database/sql"

	"github.com/go-chi/oauth"

	"github.com/mbolis/workation/config"
	"github.com/mbolis/workation/guard"
	"github.com/mbolis/workation/metrics"
	"github.com/mbolis/workation/notify"
	"github.com/mbolis/workation/store"
	"github.com/mbolis/workation/upload"
)

// App is handed to every handler factory.
type App struct {
	// users and tokens of the admin panel
	*sql.DB
	*oauth.BearerServer
	config.Config

	Stores  store.Stores
	Notify  *notify.Service
	Upload  *upload.Service
	Guard   guard.Guard
	Metrics *metrics.Metrics
}
