package main

import (
	"io"
	"os"

	"github.com/jpillora/opts"
)

var version = "0.0.0-src" //set via ldflags

// output of every command, replaced in tests
var stdout io.Writer = os.Stdout

type config struct {
	Ls     lsCmd     `opts:"mode=cmd,help=list the entries of a remote directory"`
	Cat    catCmd    `opts:"mode=cmd,help=write a remote file to stdout"`
	Rm     rmCmd     `opts:"mode=cmd,help=remove a remote file"`
	Exists existsCmd `opts:"mode=cmd,help=print whether a remote path exists"`
	IsFile isFileCmd `opts:"mode=cmd,name=isfile,help=print whether a remote path is a file"`
}

func run(args []string) error {
	c := config{}
	return opts.New(&c).
		Name("sftppath").
		Version(version).
		ParseArgs(args).
		Run()
}

func main() {
	c := config{}
	opts.New(&c).
		Name("sftppath").
		Version(version).
		Parse().
		RunFatal()
}
