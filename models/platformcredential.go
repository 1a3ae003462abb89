package models

import (
	"time"

	"fknsrs.biz/p/vidscribe/internal/sqlbuilderutil"
)

var (
	PlatformCredentialTable *sqlbuilderutil.Table
)

func init() {
	PlatformCredentialTable = sqlbuilderutil.MustMakeTable(PlatformCredential{})
}

const (
	AuthTypeCookies = "cookies"
	AuthTypeLogin   = "login"
)

type PlatformCredential struct {
	ID           int       `sql:",table:platform_credentials"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	PlatformName string
	PlatformURL  string `sql:"platform_url"`
	AuthType     string
	Username     string
	Password     string
	CookiesPath  *string
}
