package auth_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/okian/trust/internal/adapters/auth"
	. "github.com/smartystreets/goconvey/convey"
)

func TestHeaderAuthenticator(t *testing.T) {
	Convey("Given a header authenticator", t, func() {
		a := auth.NewHeaderAuthenticator()

		Convey("When identity headers are present", func() {
			r := httptest.NewRequest("GET", "/trust/score", nil)
			r.Header.Set(auth.HeaderUserID, " u1 ")
			r.Header.Set(auth.HeaderRoles, "admin, ,service")
			p, err := a.Authenticate(r)

			So(err, ShouldBeNil)
			So(p.UserID, ShouldEqual, "u1")
			So(p.Roles, ShouldResemble, []string{"admin", "service"})
		})

		Convey("When the user header is missing", func() {
			_, err := a.Authenticate(httptest.NewRequest("GET", "/", nil))
			So(errors.Is(err, auth.ErrUnauthenticated), ShouldBeTrue)
		})
	})
}

func TestJWTAuthenticator(t *testing.T) {
	Convey("Given a jwt authenticator", t, func() {
		const secret = "s3cret"
		a, err := auth.NewJWTAuthenticator(secret, auth.WithLeeway(time.Second))
		So(err, ShouldBeNil)

		request := func(token string) (auth.Principal, error) {
			r := httptest.NewRequest("GET", "/", nil)
			if token != "" {
				r.Header.Set("Authorization", "Bearer "+token)
			}
			return a.Authenticate(r)
		}

		Convey("When the token is valid", func() {
			tok, err := auth.IssueToken(secret, auth.Principal{UserID: "svc-orders", Roles: []string{"service"}}, time.Minute)
			So(err, ShouldBeNil)
			p, err := request(tok)

			So(err, ShouldBeNil)
			So(p.UserID, ShouldEqual, "svc-orders")
			So(p.HasRole("service"), ShouldBeTrue)
		})

		Convey("When the token is signed with another secret", func() {
			tok, _ := auth.IssueToken("other", auth.Principal{UserID: "u1"}, time.Minute)
			_, err := request(tok)
			So(errors.Is(err, auth.ErrUnauthenticated), ShouldBeTrue)
		})

		Convey("When the token expired", func() {
			tok, _ := auth.IssueToken(secret, auth.Principal{UserID: "u1"}, -time.Hour)
			_, err := request(tok)
			So(errors.Is(err, auth.ErrUnauthenticated), ShouldBeTrue)
		})

		Convey("When the token uses another algorithm", func() {
			tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, auth.Claims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
			}).SignedString([]byte(secret))
			_, err := request(tok)
			So(errors.Is(err, auth.ErrUnauthenticated), ShouldBeTrue)
		})

		Convey("When no token is sent", func() {
			_, err := request("")
			So(errors.Is(err, auth.ErrUnauthenticated), ShouldBeTrue)
		})

		Convey("When the secret is empty", func() {
			_, err := auth.NewJWTAuthenticator("")
			So(errors.Is(err, auth.ErrInvalidSecret), ShouldBeTrue)
		})
	})
}

func TestPolicy(t *testing.T) {
	Convey("Given the default policy", t, func() {
		p := auth.NewPolicy()
		alice := auth.Principal{UserID: "alice"}
		admin := auth.Principal{UserID: "ops", Roles: []string{"admin"}}
		svc := auth.Principal{UserID: "orders", Roles: []string{"service"}}

		Convey("Then only writers record events", func() {
			So(p.CanRecord(svc, "alice"), ShouldBeTrue)
			So(p.CanRecord(admin, "alice"), ShouldBeTrue)
			So(p.CanRecord(alice, "alice"), ShouldBeFalse)
		})

		Convey("Then history is readable by its owner only", func() {
			So(p.CanReadHistory(alice, "alice"), ShouldBeTrue)
			So(p.CanReadHistory(alice, "bob"), ShouldBeFalse)
			So(p.CanReadHistory(admin, "bob"), ShouldBeFalse)
			So(p.CanReadHistory(svc, "bob"), ShouldBeFalse)
			So(p.CanReadHistory(auth.Principal{}, ""), ShouldBeFalse)
		})

		Convey("Then any authenticated principal reads scores", func() {
			So(p.CanReadScore(alice, "bob"), ShouldBeTrue)
			So(p.CanReadScore(auth.Principal{}, "bob"), ShouldBeFalse)
		})
	})

	Convey("Given a policy with an auditor reader role", t, func() {
		p := auth.NewPolicy(auth.WithReaderRoles("auditor"))

		So(p.CanReadHistory(auth.Principal{UserID: "ops", Roles: []string{"auditor"}}, "bob"), ShouldBeTrue)
		So(p.CanReadHistory(auth.Principal{UserID: "ops", Roles: []string{"admin"}}, "bob"), ShouldBeFalse)
	})

	Convey("Given a policy without reader roles", t, func() {
		p := auth.NewPolicy(auth.WithReaderRoles(), auth.WithWriterRoles("ingest"))

		So(p.CanReadHistory(auth.Principal{UserID: "ops", Roles: []string{"admin"}}, "bob"), ShouldBeFalse)
		So(p.CanRecord(auth.Principal{UserID: "x", Roles: []string{"ingest"}}, "bob"), ShouldBeTrue)
	})

	Convey("Given a principal in a context", t, func() {
		ctx := auth.WithPrincipal(context.Background(), auth.Principal{UserID: "u1"})
		p, ok := auth.FromContext(ctx)
		So(ok, ShouldBeTrue)
		So(p.UserID, ShouldEqual, "u1")

		_, ok = auth.FromContext(context.Background())
		So(ok, ShouldBeFalse)
	})
}
