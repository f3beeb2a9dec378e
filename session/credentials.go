package session

import (
	"maps"
	"net"
	"os/user"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// DefaultPort is used when Credentials.Port is zero.
const DefaultPort = 22

// Recognised keys of Credentials.Options. Values are comma separated lists,
// except OptClientVersion.
const (
	OptClientVersion     = "client_version"
	OptCiphers           = "ciphers"
	OptKeyExchanges      = "kex"
	OptMACs              = "macs"
	OptHostKeyAlgorithms = "host_key_algorithms"
)

// Credentials holds everything needed to connect a Session.
type Credentials struct {
	Hostname string `yaml:"hostname,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	// PrivateKey is PEM text. Line breaks may be replaced by any whitespace
	// and the PEM armor may be missing (RSA is then assumed).
	PrivateKey string        `yaml:"pkey,omitempty"`
	Passphrase string        `yaml:"passphrase,omitempty"`
	Port       int           `yaml:"port,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	// Options are passed through to the SSH client configuration. Unknown
	// keys are kept but have no effect.
	Options map[string]string `yaml:"options,omitempty"`
	// Signer is an already parsed private key. When set, PrivateKey is ignored.
	Signer ssh.Signer `yaml:"-"`
}

// Addr returns host:port, defaulting the port to 22.
func (c Credentials) Addr() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Hostname, strconv.Itoa(port))
}

func (s *Session) clientConfig() *ssh.ClientConfig {
	c := s.creds
	username := c.Username
	if username == "" {
		if u, err := user.Current(); err == nil {
			username = u.Username
		}
	}
	cfg := &ssh.ClientConfig{
		User:            username,
		HostKeyCallback: s.acceptHostKey,
		Timeout:         c.Timeout,
	}
	if s.signer != nil {
		cfg.Auth = append(cfg.Auth, ssh.PublicKeys(s.signer))
	}
	if c.Password != "" {
		cfg.Auth = append(cfg.Auth, ssh.Password(c.Password))
	}
	for _, k := range slices.Sorted(maps.Keys(c.Options)) {
		v := c.Options[k]
		switch k {
		case OptClientVersion:
			cfg.ClientVersion = v
		case OptCiphers:
			cfg.Ciphers = splitList(v)
		case OptKeyExchanges:
			cfg.KeyExchanges = splitList(v)
		case OptMACs:
			cfg.MACs = splitList(v)
		case OptHostKeyAlgorithms:
			cfg.HostKeyAlgorithms = splitList(v)
		default:
			s.debugf("Ignoring unrecognised option %q", k)
		}
	}
	return cfg
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
