// Package controller provides SwapController implementations for the engine.
// The actual VMM-swap mechanism belongs to the hypervisor; this package only
// carries the decision across that boundary.
package controller

import (
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// DryRunController logs swap decisions without applying them. It is the
// default when no control command is configured, useful for observing what
// the policy would do before letting it act.
type DryRunController struct {
	logger *zap.Logger
}

// NewDryRunController creates a controller that only logs.
func NewDryRunController(logger *zap.Logger) *DryRunController {
	return &DryRunController{
		logger: logger.With(zap.String("component", "dry-run-controller")),
	}
}

func (c *DryRunController) EnableSwap(ctx context.Context, vmID string) error {
	c.logger.Info("Dry run: would enable VMM-swap", zap.String("vm_id", vmID))
	return nil
}

func (c *DryRunController) DisableSwap(ctx context.Context, vmID string) error {
	c.logger.Info("Dry run: would disable VMM-swap", zap.String("vm_id", vmID))
	return nil
}

// CommandController applies swap decisions by invoking an external control
// binary as "<command> enable <vm-id>" or "<command> disable <vm-id>".
type CommandController struct {
	command string
	logger  *zap.Logger
}

// NewCommandController creates a controller that shells out to command.
func NewCommandController(command string, logger *zap.Logger) *CommandController {
	return &CommandController{
		command: command,
		logger:  logger.With(zap.String("component", "command-controller")),
	}
}

func (c *CommandController) EnableSwap(ctx context.Context, vmID string) error {
	return c.run(ctx, "enable", vmID)
}

func (c *CommandController) DisableSwap(ctx context.Context, vmID string) error {
	return c.run(ctx, "disable", vmID)
}

func (c *CommandController) run(ctx context.Context, action, vmID string) error {
	cmd := exec.CommandContext(ctx, c.command, action, vmID)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("swap control command %q %s failed: %w: %s", c.command, action, err, out)
	}
	c.logger.Debug("Swap control command succeeded",
		zap.String("action", action),
		zap.String("vm_id", vmID),
	)
	return nil
}
