package main

import (
	"github.com/trezcool/goose"

	"github.com/trezcool/makazi/fs"
)

var gooseRunFunc = goose.RunFS // mockable

// migrate applies the goose command in args[0] (up, down, status, ...) to the
// migrations embedded under fs/migrations; any remaining args are forwarded.
func (cli *commandLine) migrate(args []string) error {
	return gooseRunFunc(args[0], cli.db, appfs.FS, "migrations", args[1:]...)
}
