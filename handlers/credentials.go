package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fknsrs.biz/p/vidscribe/internal/ctxclock"
	"fknsrs.biz/p/vidscribe/internal/ctxconfig"
	"fknsrs.biz/p/vidscribe/internal/ctxdb"
	"fknsrs.biz/p/vidscribe/internal/ctxlogger"
	"fknsrs.biz/p/vidscribe/internal/httputil"
	"fknsrs.biz/p/vidscribe/internal/store"
	"fknsrs.biz/p/vidscribe/models"
)

const (
	maskedPassword = "••••••"
	maxCookiesSize = 4 << 20
)

type credentialResponse struct {
	ID           int       `json:"id"`
	PlatformName string    `json:"platform_name"`
	PlatformURL  string    `json:"platform_url"`
	AuthType     string    `json:"auth_type"`
	Username     *string   `json:"username"`
	Password     *string   `json:"password"`
	CookiesPath  *string   `json:"cookies_path"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func makeCredentialResponse(c *models.PlatformCredential) credentialResponse {
	res := credentialResponse{
		ID:           c.ID,
		PlatformName: c.PlatformName,
		PlatformURL:  c.PlatformURL,
		AuthType:     c.AuthType,
		CookiesPath:  c.CookiesPath,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}

	if c.Username != "" {
		username := c.Username
		res.Username = &username
	}

	if c.Password != "" {
		masked := maskedPassword
		res.Password = &masked
	}

	return res
}

type credentialInput struct {
	PlatformName *string `json:"platform_name"`
	PlatformURL  *string `json:"platform_url"`
	AuthType     *string `json:"auth_type"`
	Username     *string `json:"username"`
	Password     *string `json:"password"`
}

// apply copies the set fields onto c and checks the result.
func (in credentialInput) apply(c *models.PlatformCredential) error {
	if in.PlatformName != nil {
		c.PlatformName = strings.TrimSpace(*in.PlatformName)
	}
	if in.PlatformURL != nil {
		c.PlatformURL = strings.TrimSpace(*in.PlatformURL)
	}
	if in.AuthType != nil {
		c.AuthType = *in.AuthType
	}
	if in.Username != nil {
		c.Username = *in.Username
	}
	if in.Password != nil {
		c.Password = *in.Password
	}

	switch {
	case c.PlatformName == "":
		return fmt.Errorf("platform_name is required")
	case c.PlatformURL == "":
		return fmt.Errorf("platform_url is required")
	case c.AuthType != models.AuthTypeCookies && c.AuthType != models.AuthTypeLogin:
		return fmt.Errorf("auth_type must be %q or %q", models.AuthTypeCookies, models.AuthTypeLogin)
	}

	return nil
}

func CreateCredential(rw http.ResponseWriter, r *http.Request) {
	var input credentialInput
	if !readJSON(rw, r, &input) {
		return
	}

	var credential models.PlatformCredential
	if err := input.apply(&credential); err != nil {
		httputil.BadRequest(rw, err.Error())
		return
	}

	if !inTx(rw, r, func(ctx context.Context, tx *sql.Tx) error {
		return store.CreateCredential(ctx, tx, ctxclock.Now(ctx), &credential)
	}) {
		return
	}

	httputil.WriteJSON(rw, http.StatusCreated, makeCredentialResponse(&credential))
}

func Credentials(rw http.ResponseWriter, r *http.Request) {
	credentials, err := store.ListCredentials(r.Context(), ctxdb.MustGetDB(r.Context()))
	if err != nil {
		panic(err)
	}

	out := make([]credentialResponse, len(credentials))
	for i := range credentials {
		out[i] = makeCredentialResponse(&credentials[i])
	}

	httputil.WriteJSON(rw, http.StatusOK, out)
}

func findCredential(rw http.ResponseWriter, r *http.Request) (*models.PlatformCredential, bool) {
	id, ok := idVar(rw, r, "id")
	if !ok {
		return nil, false
	}

	credential, err := store.FindCredential(r.Context(), ctxdb.MustGetDB(r.Context()), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httputil.Error(rw, http.StatusNotFound, "credential not found")
			return nil, false
		}

		panic(err)
	}

	return credential, true
}

func Credential(rw http.ResponseWriter, r *http.Request) {
	credential, ok := findCredential(rw, r)
	if !ok {
		return
	}

	httputil.WriteJSON(rw, http.StatusOK, makeCredentialResponse(credential))
}

func UpdateCredential(rw http.ResponseWriter, r *http.Request) {
	var input credentialInput
	if !readJSON(rw, r, &input) {
		return
	}

	credential, ok := findCredential(rw, r)
	if !ok {
		return
	}

	if err := input.apply(credential); err != nil {
		httputil.BadRequest(rw, err.Error())
		return
	}

	if !inTx(rw, r, func(ctx context.Context, tx *sql.Tx) error {
		return store.SaveCredential(ctx, tx, ctxclock.Now(ctx), credential)
	}) {
		return
	}

	httputil.WriteJSON(rw, http.StatusOK, makeCredentialResponse(credential))
}

func DeleteCredential(rw http.ResponseWriter, r *http.Request) {
	credential, ok := findCredential(rw, r)
	if !ok {
		return
	}

	if !inTx(rw, r, func(ctx context.Context, tx *sql.Tx) error {
		return store.DeleteCredential(ctx, tx, credential.ID)
	}) {
		return
	}

	if err := os.RemoveAll(ctxconfig.DataFile(r.Context(), "cookies", strconv.Itoa(credential.ID))); err != nil {
		ctxlogger.GetLogger(r.Context()).WithError(err).WithField("credential.id", credential.ID).Warn("could not remove cookies")
	}

	httputil.NoContent(rw)
}

func UploadCookies(rw http.ResponseWriter, r *http.Request) {
	credential, ok := findCredential(rw, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(rw, r.Body, maxCookiesSize+(1<<20))

	file, _, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(rw, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	cfg := ctxconfig.GetConfig(r.Context())
	id := strconv.Itoa(credential.ID)

	rel := cfg.RelativeDataFile("cookies", id, "cookies.txt")
	p := cfg.ResolveDataFile(rel)

	if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
		panic(err)
	}

	fd, err := os.OpenFile(p+".tmp", os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		panic(err)
	}

	if _, err := io.Copy(fd, io.LimitReader(file, maxCookiesSize)); err != nil {
		fd.Close()
		panic(err)
	}

	if err := fd.Close(); err != nil {
		panic(err)
	}

	if err := os.Rename(p+".tmp", p); err != nil {
		panic(err)
	}

	credential.CookiesPath = &rel

	if !inTx(rw, r, func(ctx context.Context, tx *sql.Tx) error {
		return store.SaveCredential(ctx, tx, ctxclock.Now(ctx), credential)
	}) {
		return
	}

	httputil.WriteJSON(rw, http.StatusOK, makeCredentialResponse(credential))
}
