package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/tgtoolkit/internal/cryptox"
	"github.com/dmitrijs2005/tgtoolkit/internal/server/auth"
)

const (
	secretEnv       = "TGTOOLKIT_SECRET_KEY"
	vaultKeyEnv     = "TGTOOLKIT_ENCRYPTION_KEY"
	defaultTokenTTL = 24 * time.Hour
)

func runToken(_ context.Context, a *App, args []string) error {
	fs := a.flagSet("token")
	secret := fs.String("s", "", "JWT secret (default $"+secretEnv+")")
	operator := fs.String("operator", "operator", "operator name embedded in the token")
	ttl := fs.Duration("ttl", defaultTokenTTL, "token validity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key := envOr(*secret, secretEnv)
	if err := required(fs, "s", key); err != nil {
		return err
	}

	tok, err := auth.GenerateToken(*operator, []byte(key), *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, tok)
	return nil
}

func runGenKey(_ context.Context, a *App, _ []string) error {
	k, err := cryptox.GenerateKey()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, k)
	return nil
}

func runSeal(_ context.Context, a *App, args []string) error {
	fs := a.flagSet("seal")
	in := fs.String("in", "", "file to seal")
	out := fs.String("out", "", "output path (default <in>.tgbak)")
	dir := fs.String("dir", "", "directory to seal into <dir>.tgbak")
	noCompress := fs.Bool("no-compress", false, "skip gzip compression")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" && *dir == "" {
		return required(fs, "in", "")
	}

	pw, err := GetNewPassword(a.errw)
	if err != nil {
		return err
	}

	if *dir != "" {
		path, err := cryptox.SealDirectory(*dir, pw)
		if err != nil {
			return err
		}
		return a.printJSON(map[string]string{"path": path})
	}

	res, err := cryptox.SealFile(*in, *out, pw, !*noCompress)
	if err != nil {
		return err
	}
	return a.printJSON(res)
}

func runOpen(_ context.Context, a *App, args []string) error {
	fs := a.flagSet("open")
	in := fs.String("in", "", "backup to open")
	out := fs.String("out", "", "output file (default <in> without .tgbak)")
	dir := fs.String("dir", "", "extract a directory backup into this directory")
	noDecompress := fs.Bool("no-decompress", false, "write the payload without gunzipping")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "in", *in); err != nil {
		return err
	}

	pw, err := GetPassword(a.errw, "Enter password: ")
	if err != nil {
		return err
	}

	if *dir != "" {
		path, err := cryptox.OpenDirectory(*in, *dir, pw)
		if err != nil {
			return err
		}
		return a.printJSON(map[string]string{"path": path})
	}

	res, err := cryptox.OpenFile(*in, *out, pw, !*noDecompress)
	if err != nil {
		return err
	}
	return a.printJSON(res)
}

func runVerify(_ context.Context, a *App, args []string) error {
	fs := a.flagSet("verify")
	in := fs.String("in", "", "backup to check")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "in", *in); err != nil {
		return err
	}

	blob, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	pw, err := GetPassword(a.errw, "Enter password: ")
	if err != nil {
		return err
	}

	if !cryptox.VerifyPassword(blob, pw) {
		return fmt.Errorf("wrong password for %s", *in)
	}
	fmt.Fprintln(a.out, "password OK")
	return nil
}

func vaultFlags(a *App, name string, args []string) (in, out string, v *cryptox.Vault, err error) {
	fs := a.flagSet(name)
	inF := fs.String("in", "", "input file")
	outF := fs.String("out", "", "output file")
	key := fs.String("k", "", "vault key (default $"+vaultKeyEnv+")")
	secret := fs.String("s", "", "secret the key is derived from when -k is empty (default $"+secretEnv+")")
	if err = fs.Parse(args); err != nil {
		return
	}
	if err = required(fs, "in", *inF); err != nil {
		return
	}
	k, s := envOr(*key, vaultKeyEnv), envOr(*secret, secretEnv)
	if k == "" && s == "" {
		fmt.Fprintln(fs.Output(), "either -k or -s is required")
		return "", "", nil, errUsage
	}
	v, err = cryptox.NewVault(k, s)
	return *inF, *outF, v, err
}

func runVaultEncrypt(_ context.Context, a *App, args []string) error {
	in, out, v, err := vaultFlags(a, "vault-encrypt", args)
	if err != nil {
		return err
	}
	path, err := v.EncryptFile(in, out)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, path)
	return nil
}

func runVaultDecrypt(_ context.Context, a *App, args []string) error {
	in, out, v, err := vaultFlags(a, "vault-decrypt", args)
	if err != nil {
		return err
	}
	path, err := v.DecryptFile(in, out)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, path)
	return nil
}
