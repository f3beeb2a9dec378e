// Package key rebuilds, parses and generates SSH private keys.
//
// Private keys often reach a program through channels that do not preserve
// line breaks (environment variables, single-line config values). Normalize
// reconstructs PEM text from such input before it is parsed.
package key

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/crypto/ssh"
)

// DefaultType is the PEM block type assumed when key text carries no header.
const DefaultType = "RSA PRIVATE KEY"

var (
	headerRe = regexp.MustCompile(`^-----BEGIN ([A-Z0-9 ]+)-----`)
	footerRe = regexp.MustCompile(`-----END ([A-Z0-9 ]+)-----$`)
)

// Normalize rebuilds PEM text from private key text whose whitespace was
// mangled. Surrounding whitespace and the PEM header/footer are removed, the
// remaining body is split on any run of whitespace, and the header/footer are
// re-attached around one body chunk per line. Leading "Proc-Type:" and
// "DEK-Info:" style headers are restored as single lines.
func Normalize(text string) ([]byte, error) {
	t := strings.TrimSpace(text)
	typ := ""
	if m := headerRe.FindStringSubmatch(t); m != nil {
		typ = m[1]
		t = t[len(m[0]):]
	}
	if m := footerRe.FindStringSubmatch(t); m != nil {
		if typ != "" && m[1] != typ {
			return nil, fmt.Errorf("mismatched PEM footer %q for header %q", m[1], typ)
		}
		typ = m[1]
		t = t[:len(t)-len(m[0])]
	}
	if typ == "" {
		typ = DefaultType
	}
	body := strings.Fields(t)
	var b strings.Builder
	b.WriteString("-----BEGIN " + typ + "-----\n")
	// legacy encrypted keys carry "Name: value" headers before the base64
	// body, which never contains ':'
	headers := 0
	for len(body) >= 2 && strings.HasSuffix(body[0], ":") {
		b.WriteString(body[0] + " " + body[1] + "\n")
		body = body[2:]
		headers++
	}
	if headers > 0 {
		b.WriteByte('\n')
	}
	if len(body) == 0 {
		return nil, errors.New("empty key body")
	}
	for _, chunk := range body {
		b.WriteString(chunk)
		b.WriteByte('\n')
	}
	b.WriteString("-----END " + typ + "-----\n")
	return []byte(b.String()), nil
}

// ParsePrivateKey parses private key text into a signer. Well-formed PEM is
// parsed as is; anything else goes through Normalize first. The passphrase is
// only used when non-empty.
func ParsePrivateKey(text, passphrase string) (ssh.Signer, error) {
	b := []byte(strings.TrimSpace(text) + "\n")
	if block, _ := pem.Decode(b); block == nil {
		nb, err := Normalize(text)
		if err != nil {
			return nil, err
		}
		b = nb
	}
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(b, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(b)
}

// GenerateKey returns a PEM encoded private key. With ec set an ed25519 key
// is produced, derived from seed when seed is non-empty. Otherwise a random
// RSA 2048 key is produced and seed is ignored.
func GenerateKey(seed string, ec bool) ([]byte, error) {
	if ec {
		var r io.Reader = rand.Reader
		if seed != "" {
			r = NewDetermRand([]byte(seed))
		}
		s := make([]byte, ed25519.SeedSize)
		if _, err := io.ReadFull(r, s); err != nil {
			return nil, err
		}
		pri := ed25519.NewKeyFromSeed(s)
		pemBlock, err := ssh.MarshalPrivateKey(pri, "")
		if err != nil {
			return nil, err
		}
		return pem.EncodeToMemory(pemBlock), nil
	}
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	err = priv.Validate()
	if err != nil {
		return nil, err
	}
	b := x509.MarshalPKCS1PrivateKey(priv)
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: b}), nil
}

// SignerFromSeed returns the ed25519 signer GenerateKey derives from seed.
func SignerFromSeed(seed string) (ssh.Signer, error) {
	b, err := GenerateKey(seed, true)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(b)
}

// Map holds authorized public keys (marshalled key -> comment).
type Map map[string]string

func (m Map) HasKey(k ssh.PublicKey) bool {
	_, ok := m[string(k.Marshal())]
	return ok
}

// ParseKeys parses authorized_keys formatted text.
func ParseKeys(b []byte) (Map, error) {
	lines := bytes.Split(b, []byte("\n"))
	m := Map{}
	for _, l := range lines {
		if key, cmt, _, _, err := ssh.ParseAuthorizedKey(l); err == nil {
			m[string(key.Marshal())] = cmt
		}
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("no keys found")
	}
	return m, nil
}

func Fingerprint(k ssh.PublicKey) string {
	bytes := sha256.Sum256(k.Marshal())
	b64 := base64.StdEncoding.WithPadding(base64.NoPadding).EncodeToString(bytes[:])
	return "SHA256:" + b64
}

const DetermRandIter = 2048

func NewDetermRand(seed []byte) io.Reader {
	var out []byte
	var next = seed
	for i := 0; i < DetermRandIter; i++ {
		next, out = hash(next)
	}
	return &DetermRand{
		next: next,
		out:  out,
	}
}

// DetermRand is a deterministic byte stream derived from a seed.
type DetermRand struct {
	next, out []byte
}

func (d *DetermRand) Read(b []byte) (int, error) {
	l := len(b)
	n := 0
	for n < l {
		next, out := hash(d.next)
		n += copy(b[n:], out)
		d.next = next
	}
	return n, nil
}

func hash(input []byte) (next []byte, output []byte) {
	nextout := sha512.Sum512(input)
	return nextout[:sha512.Size/2], nextout[sha512.Size/2:]
}
