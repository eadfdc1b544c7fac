package main

import (
	"os"

	"github.com/sandeepkv93/portal-credential-exchange/internal/tools/portalauth"
)

func main() {
	os.Exit(portalauth.Execute())
}
