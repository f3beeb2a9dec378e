package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jpillora/jplog"
	cfgfile "github.com/jpillora/sftppath/config"
	"github.com/jpillora/sftppath/session"
	"github.com/jpillora/sftppath/sftppath"
)

// target is the remote path plus the flags used to reach it. Flags override
// the credentials file, which is overridden by SFTP_* variables.
type target struct {
	Config   string `opts:"name=config,env=SFTP_CONFIG,help=YAML credentials file"`
	User     string `opts:"name=user,help=remote username"`
	Password string `opts:"name=password,help=remote password"`
	KeyFile  string `opts:"name=key-file,help=a filepath to a private key (for example an 'id_rsa' file)"`
	Port     int    `opts:"name=port,help=remote port (defaults to 22)"`
	Verbose  bool   `opts:"name=verbose,help=verbose logs"`
	URL      string `opts:"mode=arg,name=url,help=remote path (sftp://host/dir/file)"`
}

func (t *target) path() (sftppath.Path, error) {
	p, err := sftppath.Parse(t.URL, session.Credentials{})
	if err != nil {
		return p, err
	}
	creds, err := cfgfile.Load(t.Config, p.Hostname())
	if err != nil {
		return p, err
	}
	if t.User != "" {
		creds.Username = t.User
	}
	if t.Password != "" {
		creds.Password = t.Password
	}
	if t.Port != 0 {
		creds.Port = t.Port
	}
	if t.KeyFile != "" {
		b, err := os.ReadFile(t.KeyFile)
		if err != nil {
			return p, fmt.Errorf("failed to load key file: %w", err)
		}
		creds.PrivateKey = string(b)
	}
	h := jplog.Handler(os.Stderr)
	if t.Verbose {
		h = h.Verbose()
	}
	p, err = sftppath.Parse(t.URL, creds)
	if err != nil {
		return p, err
	}
	return p.WithOptions(session.WithLogger(slog.New(h))), nil
}

// with runs fn against the target path and closes its session afterwards.
func (t *target) with(fn func(p sftppath.Path) error) error {
	p, err := t.path()
	if err != nil {
		return err
	}
	err = fn(p)
	if cerr := p.Close(); err == nil {
		err = cerr
	}
	return err
}

type lsCmd struct {
	Target target `opts:"mode=embedded"`
}

func (c *lsCmd) Run() error {
	return c.Target.with(func(p sftppath.Path) error {
		for child, err := range p.Iterdir() {
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, child)
		}
		return nil
	})
}

type catCmd struct {
	Target target `opts:"mode=embedded"`
}

func (c *catCmd) Run() error {
	return c.Target.with(func(p sftppath.Path) error {
		return p.Open("rb", func(r io.Reader) error {
			_, err := io.Copy(stdout, r)
			return err
		})
	})
}

type rmCmd struct {
	Target target `opts:"mode=embedded"`
}

func (c *rmCmd) Run() error {
	return c.Target.with(sftppath.Path.Unlink)
}

type existsCmd struct {
	Target target `opts:"mode=embedded"`
}

func (c *existsCmd) Run() error {
	return c.Target.with(func(p sftppath.Path) error {
		ok, err := p.Exists()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, ok)
		return nil
	})
}

type isFileCmd struct {
	Target target `opts:"mode=embedded"`
}

func (c *isFileCmd) Run() error {
	return c.Target.with(func(p sftppath.Path) error {
		ok, err := p.IsFile()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, ok)
		return nil
	})
}
