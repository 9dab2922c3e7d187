package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	gs "github.com/dmitrijs2005/tgtoolkit/internal/server/grpc"
)

const (
	tokenEnv       = "TGTOOLKIT_TOKEN"
	defaultAddr    = "127.0.0.1:50051"
	defaultTimeout = 2 * time.Minute
)

type dialFunc func(addr string) (grpc.ClientConnInterface, io.Closer, error)

func dialGRPC(addr string) (grpc.ClientConnInterface, io.Closer, error) {
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	return cc, cc, nil
}

func runCall(ctx context.Context, a *App, args []string) error {
	fs := a.flagSet("call")
	addr := fs.String("addr", defaultAddr, "control API address")
	token := fs.String("token", "", "access token (default $"+tokenEnv+")")
	timeout := fs.Duration("timeout", defaultTimeout, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(fs.Output(), "method name is required, e.g. call ListAccounts")
		return errUsage
	}

	method := fs.Arg(0)
	body := map[string]any{}
	if fs.NArg() > 1 {
		if err := json.Unmarshal([]byte(fs.Arg(1)), &body); err != nil {
			return fmt.Errorf("request body must be a JSON object: %w", err)
		}
	}

	cc, closer, err := a.dial(*addr)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	var resp map[string]any
	if err := gs.NewClient(cc, envOr(*token, tokenEnv)).Call(ctx, method, body, &resp); err != nil {
		return err
	}
	return a.printJSON(resp)
}
