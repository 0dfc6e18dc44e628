package manager

import (
	"subuk/gamemango/compute"
	"subuk/gamemango/config"
	"subuk/gamemango/metrics"
	"subuk/gamemango/ping"
	"subuk/gamemango/remote"
	"subuk/gamemango/util"
	"time"

	"github.com/rs/zerolog"
)

type flavor func(params Params) (Manager, error)

var flavors = map[string]flavor{
	config.TypeMinecraft: func(params Params) (Manager, error) {
		return NewMinecraftManager(params)
	},
}

// InstanceRepositoryFunc builds the instance binding of one server.
type InstanceRepositoryFunc func(server *config.ServerConfig) (compute.InstanceRepository, error)

type Factory struct {
	Logger        *zerolog.Logger
	CheckInterval time.Duration
	Credentials   config.Credentials
	Timings       Timings
	Instances     InstanceRepositoryFunc
	Pinger        ping.Pinger
	Executor      remote.Executor
	Metrics       *metrics.Metrics
}

// Create selects the manager flavor by server type. Nothing is constructed
// for an unknown type.
func (factory *Factory) Create(server *config.ServerConfig) (Manager, error) {
	if server == nil {
		return nil, Params{Logger: factory.Logger}.validate()
	}
	create, ok := flavors[server.Type]
	if !ok {
		return nil, &UnsupportedServerError{Type: server.Type}
	}
	params := Params{
		Logger:        factory.Logger,
		CheckInterval: factory.CheckInterval,
		Config:        server,
		Credentials:   factory.Credentials,
		Pinger:        factory.Pinger,
		Executor:      factory.Executor,
		Metrics:       factory.Metrics,
		Timings:       factory.Timings,
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	if factory.Instances != nil {
		instances, err := factory.Instances(server)
		if err != nil {
			return nil, util.NewError(err, "cannot bind instance for server %s", server.Name)
		}
		params.Instances = instances
	}
	return create(params)
}
