package main

import (
	"context"

	"hrexport/cmd/hrexport/commands"
	"hrexport/lib/osutil"
)

func main() {
	ctx, cancel := osutil.SignalContext(context.Background())
	defer cancel()
	commands.ExecuteContext(ctx)
}
