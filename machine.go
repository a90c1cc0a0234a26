// Package vscan holds the model namespace and machine connection helpers shared
// by the scan camera and the tools.
package vscan

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.viam.com/rdk/cli"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/robot"
	"go.viam.com/rdk/robot/client"
	"go.viam.com/rdk/robot/framesystem"
	"go.viam.com/rdk/utils"
	"go.viam.com/utils/rpc"
)

// NamespaceFamily is the model family of every vscan component.
var NamespaceFamily = resource.NewModelFamily("erh", "vscan")

// MachineToDependencies exposes every resource of a connected machine, plus its
// frame system, as dependencies for building a component locally.
func MachineToDependencies(client robot.Robot) (resource.Dependencies, error) {
	deps := resource.Dependencies{}

	for _, n := range client.ResourceNames() {
		r, err := client.ResourceByName(n)
		if err != nil {
			return nil, err
		}
		deps[n] = r
	}

	r, ok := client.(resource.Resource)
	if !ok {
		return nil, fmt.Errorf("client isn't a resource.Resource")
	}
	deps[framesystem.PublicServiceName] = r

	return deps, nil
}

// ConnectToMachineFromEnv dials the machine a module runs on, using the host
// and api key viam-server puts in the module environment.
func ConnectToMachineFromEnv(ctx context.Context, logger logging.Logger) (robot.Robot, error) {
	host, keyID, key, err := machineEnv()
	if err != nil {
		return nil, err
	}
	return ConnectToMachine(ctx, logger, host, keyID, key)
}

func machineEnv() (host, keyID, key string, err error) {
	var missing []string
	lookup := func(name string) string {
		v := os.Getenv(name)
		if v == "" {
			missing = append(missing, name)
		}
		return v
	}

	host = lookup(utils.MachineFQDNEnvVar)
	keyID = lookup(utils.APIKeyIDEnvVar)
	key = lookup(utils.APIKeyEnvVar)
	if len(missing) > 0 {
		return "", "", "", fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}
	return host, keyID, key, nil
}

// ConnectToMachine dials host with an api key.
func ConnectToMachine(ctx context.Context, logger logging.Logger, host, apiKeyID, apiKey string) (robot.Robot, error) {
	creds := rpc.Credentials{Type: rpc.CredentialsTypeAPIKey, Payload: apiKey}
	return client.New(ctx, host, logger, client.WithDialOptions(rpc.WithEntityCredentials(apiKeyID, creds)))
}

// ConnectToHostFromCLIToken logs in with the cached viam cli token.
// Run "viam login" first.
func ConnectToHostFromCLIToken(ctx context.Context, host string, logger logging.Logger) (robot.Robot, error) {
	if host == "" {
		return nil, fmt.Errorf("need a host to log in to")
	}

	c, err := cli.ConfigFromCache(nil)
	if err != nil {
		return nil, fmt.Errorf("no cached cli login: %w", err)
	}

	dopts, err := c.DialOptions()
	if err != nil {
		return nil, err
	}

	return client.New(ctx, host, logger, client.WithDialOptions(dopts...))
}

// Connect uses the cli token when a host is given and the module environment otherwise.
func Connect(ctx context.Context, host string, logger logging.Logger) (robot.Robot, error) {
	if host == "" {
		return ConnectToMachineFromEnv(ctx, logger)
	}
	return ConnectToHostFromCLIToken(ctx, host, logger)
}

// FindDep looks a dependency up by its short name.
func FindDep(deps resource.Dependencies, n string) (resource.Resource, bool) {
	for nn, r := range deps {
		if nn.ShortName() == n {
			return r, true
		}
	}
	return nil, false
}
