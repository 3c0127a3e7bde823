package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI 在 Migrator 上提供面向终端的格式化操作
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI 创建 CLI,默认输出到 stdout
func NewCLI(migrator Migrator) *CLI {
	return &CLI{
		migrator: migrator,
		output:   os.Stdout,
	}
}

// SetOutput 重定向 CLI 输出
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

// refuseDirty 在执行迁移前拦截 dirty 状态。
// golang-migrate 自己也会拒绝,但报错晦涩;这里先给出能直接照做的修复指引。
func (c *CLI) refuseDirty(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("schema is dirty at version %d: inspect the database, "+
			"then repair with 'migrate force %d' (or the last known-good version)", version, version)
	}
	return nil
}

// guarded 统一所有会改 schema 的命令的执行流程:
// 拦 dirty → 打横幅 → 执行 → 报落点版本。
// 底层 Migrator 的错误已经带操作名,这里不再套一层。
func (c *CLI) guarded(ctx context.Context, banner, done string, op func(context.Context) error) error {
	if err := c.refuseDirty(ctx); err != nil {
		return err
	}

	fmt.Fprintln(c.output, banner)
	if err := op(ctx); err != nil {
		return err
	}

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "%s Current version: %d\n", done, info.CurrentVersion)
	return nil
}

// RunUp 应用全部待执行迁移
func (c *CLI) RunUp(ctx context.Context) error {
	return c.guarded(ctx, "Running migrations...", "Migrations complete.", c.migrator.Up)
}

// RunDown 回滚最近一次迁移
func (c *CLI) RunDown(ctx context.Context) error {
	return c.guarded(ctx, "Rolling back last migration...", "Rollback complete.", c.migrator.Down)
}

// RunDownAll 回滚全部迁移
func (c *CLI) RunDownAll(ctx context.Context) error {
	return c.guarded(ctx, "Rolling back all migrations...", "All migrations rolled back.", c.migrator.DownAll)
}

// RunSteps 执行 n 步迁移
func (c *CLI) RunSteps(ctx context.Context, n int) error {
	banner := fmt.Sprintf("Applying %d migration(s)...", n)
	if n < 0 {
		banner = fmt.Sprintf("Rolling back %d migration(s)...", -n)
	}
	return c.guarded(ctx, banner, "Complete.", func(ctx context.Context) error {
		return c.migrator.Steps(ctx, n)
	})
}

// RunGoto 迁移到指定版本
func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	banner := fmt.Sprintf("Migrating to version %d...", version)
	return c.guarded(ctx, banner, "Migration complete.", func(ctx context.Context) error {
		return c.migrator.Goto(ctx, version)
	})
}

// RunForce 强制改写版本号,dirty 修复专用,因此不做 dirty 拦截
func (c *CLI) RunForce(ctx context.Context, version int) error {
	fmt.Fprintf(c.output, "Forcing version to %d...\n", version)

	if err := c.migrator.Force(ctx, version); err != nil {
		return fmt.Errorf("force failed: %w", err)
	}

	fmt.Fprintf(c.output, "Version forced to %d\n", version)
	return nil
}

// RunVersion 打印当前迁移版本
func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}

	if version == 0 {
		fmt.Fprintln(c.output, "No migrations applied yet.")
		return nil
	}

	fmt.Fprintf(c.output, "Current version: %d", version)
	if dirty {
		fmt.Fprint(c.output, " (dirty)")
	}
	fmt.Fprintln(c.output)
	return nil
}

// RunStatus 打印全部迁移的状态表
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	if len(statuses) == 0 {
		fmt.Fprintln(c.output, "No migrations found.")
		return nil
	}

	irreversible := 0
	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	fmt.Fprintln(w, "-------\t----\t------")
	for _, s := range statuses {
		status := "Pending"
		if s.Applied {
			status = "Applied"
		}
		if s.Dirty {
			status = "Dirty"
		}
		if !s.Reversible {
			status += " (no down)"
			irreversible++
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, status)
	}
	w.Flush()

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.output)
	fmt.Fprintf(c.output, "Total: %d, Applied: %d, Pending: %d\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	if info.Dirty {
		fmt.Fprintf(c.output, "WARNING: schema is dirty at version %d; repair with 'migrate force'\n",
			info.CurrentVersion)
	}
	if irreversible > 0 {
		fmt.Fprintf(c.output, "WARNING: %d migration(s) have no down file and cannot be rolled back\n",
			irreversible)
	}
	return nil
}

// RunInfo 打印迁移状态摘要
func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get info: %w", err)
	}

	fmt.Fprintln(c.output, "Migration Information:")
	fmt.Fprintf(c.output, "  Current Version:    %d\n", info.CurrentVersion)
	fmt.Fprintf(c.output, "  Dirty:              %v\n", info.Dirty)
	fmt.Fprintf(c.output, "  Total Migrations:   %d\n", info.TotalMigrations)
	fmt.Fprintf(c.output, "  Applied Migrations: %d\n", info.AppliedMigrations)
	fmt.Fprintf(c.output, "  Pending Migrations: %d\n", info.PendingMigrations)
	return nil
}
