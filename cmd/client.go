package cmd

import (
	"context"
	"time"

	"firestige.xyz/stallwatch/internal/command"
)

// ClientInterface 定义所有命令需要的客户端方法
type ClientInterface interface {
	Status(ctx context.Context) (*command.DaemonStatus, error)
	Reload(ctx context.Context) error
	Stop(ctx context.Context) error
}

var cli ClientInterface

// SetClient overrides the daemon client, for tests.
func SetClient(c ClientInterface) {
	cli = c
}

// GetClient returns the daemon client, talking to the control socket by
// default.
func GetClient() ClientInterface {
	if cli == nil {
		return udsClient{command.NewUDSClient(socketPath, 10*time.Second)}
	}
	return cli
}

// udsClient adapts command.UDSClient to ClientInterface.
type udsClient struct {
	c *command.UDSClient
}

func (u udsClient) Status(ctx context.Context) (*command.DaemonStatus, error) {
	return u.c.DaemonStatus(ctx)
}

func (u udsClient) Reload(ctx context.Context) error { return u.c.ConfigReload(ctx) }

func (u udsClient) Stop(ctx context.Context) error { return u.c.DaemonShutdown(ctx) }
