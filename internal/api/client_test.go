package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mecarvi/siteadmin/internal/attachment"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type capturedRequest struct {
	method   string
	path     string
	override string
	formVerb string
	auth     string
	ctype    string
	reqID    string
}

func newTestServer(t *testing.T, register func(r *gin.Engine, seen *[]capturedRequest)) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	seen := make([]capturedRequest, 0)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		captured := capturedRequest{
			method:   c.Request.Method,
			path:     c.Request.URL.Path,
			override: c.GetHeader(MethodOverrideHeader),
			auth:     c.GetHeader("Authorization"),
			ctype:    c.ContentType(),
			reqID:    c.GetHeader(RequestIDHeader),
		}
		if strings.HasPrefix(captured.ctype, "multipart/") {
			captured.formVerb = c.PostForm(MethodOverrideField)
		}
		seen = append(seen, captured)
		c.Next()
	})
	register(r, &seen)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestDoSendsJSONWithBearer(t *testing.T) {
	srv, seen := newTestServer(t, func(r *gin.Engine, _ *[]capturedRequest) {
		r.PUT("/faq-sections/:id", func(c *gin.Context) {
			var body map[string]any
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false})
				return
			}
			body["id"] = 7
			c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"faq_section": body}})
		})
	})

	client := NewClient(srv.URL+"/", StaticToken("secret"))
	resp, err := client.Do(context.Background(), Request{
		Method: http.MethodPut,
		Path:   "/faq-sections/7",
		Body:   map[string]any{"title": "Q2"},
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}

	var rec map[string]any
	if err := resp.Decode("faq_section", &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["title"] != "Q2" {
		t.Fatalf("unexpected record %#v", rec)
	}

	got := (*seen)[0]
	if got.method != http.MethodPut || got.auth != "Bearer secret" || got.ctype != "application/json" {
		t.Fatalf("unexpected request %#v", got)
	}
	if got.reqID == "" {
		t.Fatalf("expected request id header")
	}
}

func TestDoMultipartUsesMethodOverride(t *testing.T) {
	srv, seen := newTestServer(t, func(r *gin.Engine, _ *[]capturedRequest) {
		r.POST("/faq-sections/:id", func(c *gin.Context) {
			file, err := c.FormFile("image")
			if err != nil {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "errors": gin.H{"image": []string{"missing"}}})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"faq_section": gin.H{
				"id":    7,
				"title": c.PostForm("title"),
				"image": "/uploads/" + file.Filename,
			}}})
		})
	})

	client := NewClient(srv.URL, StaticToken("secret"))
	resp, err := client.Do(context.Background(), Request{
		Method: http.MethodPut,
		Path:   "/faq-sections/7",
		Body:   map[string]any{"title": "Q2"},
		Files:  map[string]*attachment.File{"image": {Name: "a.png", ContentType: "image/png", Data: []byte("png")}},
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}

	got := (*seen)[0]
	if got.method != http.MethodPost {
		t.Fatalf("expected POST on the wire, got %s", got.method)
	}
	if got.formVerb != http.MethodPut || got.override != http.MethodPut {
		t.Fatalf("expected _method=PUT field and header, got %#v", got)
	}
	var rec map[string]any
	if err := resp.Decode("faq_section", &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["image"] != "/uploads/a.png" {
		t.Fatalf("unexpected image %v", rec["image"])
	}
}

func TestDoRefusesMutationWithoutToken(t *testing.T) {
	srv, seen := newTestServer(t, func(r *gin.Engine, _ *[]capturedRequest) {
		r.DELETE("/careers/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	})

	client := NewClient(srv.URL, StaticToken(""))
	_, err := client.Do(context.Background(), Request{Method: http.MethodDelete, Path: "/careers/1"})
	if !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	if len(*seen) != 0 {
		t.Fatalf("request must not be sent without token")
	}
}

func TestDoPublicReadRetriesWithToken(t *testing.T) {
	srv, seen := newTestServer(t, func(r *gin.Engine, _ *[]capturedRequest) {
		r.GET("/careers", func(c *gin.Context) {
			if c.GetHeader("Authorization") == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Unauthenticated"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"careers": []gin.H{{"id": 1}}}})
		})
	})

	client := NewClient(srv.URL, StaticToken("secret"))
	resp, err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/careers", Auth: AuthPublic})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	var items []map[string]any
	if err := resp.Decode("careers", &items); err != nil || len(items) != 1 {
		t.Fatalf("expected one career, got %v (%v)", items, err)
	}
	if len(*seen) != 2 || (*seen)[0].auth != "" || (*seen)[1].auth != "Bearer secret" {
		t.Fatalf("expected anonymous attempt then authenticated retry, got %#v", *seen)
	}
}

func TestDoPublicReadWithoutTokenFails(t *testing.T) {
	srv, _ := newTestServer(t, func(r *gin.Engine, _ *[]capturedRequest) {
		r.GET("/careers", func(c *gin.Context) {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false})
		})
	})

	client := NewClient(srv.URL, nil)
	_, err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/careers", Auth: AuthPublic})
	if !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
}

func TestDoFlattensValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t, func(r *gin.Engine, _ *[]capturedRequest) {
		r.POST("/faq-sections", func(c *gin.Context) {
			c.Data(http.StatusUnprocessableEntity, "application/json",
				[]byte(`{"success":false,"message":"The given data was invalid.","errors":{"title":["required"],"email":["invalid"]}}`))
		})
	})

	client := NewClient(srv.URL, StaticToken("secret"))
	_, err := client.Do(context.Background(), Request{Method: http.MethodPost, Path: "/faq-sections", Body: map[string]any{}})

	var appErr *ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected ApplicationError, got %v", err)
	}
	if appErr.Error() != "title: required; email: invalid" {
		t.Fatalf("unexpected flattened message %q", appErr.Error())
	}
	if appErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status %d", appErr.Status)
	}
}

func TestDoSuccessFalseIsApplicationError(t *testing.T) {
	srv, _ := newTestServer(t, func(r *gin.Engine, _ *[]capturedRequest) {
		r.POST("/projects", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "Slug already taken"})
		})
	})

	client := NewClient(srv.URL, StaticToken("secret"))
	_, err := client.Do(context.Background(), Request{Method: http.MethodPost, Path: "/projects", Body: map[string]any{"title": "x"}})
	var appErr *ApplicationError
	if !errors.As(err, &appErr) || appErr.Error() != "Slug already taken" {
		t.Fatalf("expected application error, got %v", err)
	}
}

func TestDoNonJSONIsTransportError(t *testing.T) {
	srv, _ := newTestServer(t, func(r *gin.Engine, _ *[]capturedRequest) {
		r.GET("/projects", func(c *gin.Context) {
			c.String(http.StatusOK, "<html>maintenance</html>")
		})
	})

	metrics := NewMetrics(prometheus.NewRegistry())
	client := NewClient(srv.URL, nil, WithMetrics(metrics))
	_, err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/projects", Auth: AuthPublic, Resource: "projects"})

	var transport *TransportError
	if !errors.As(err, &transport) || !errors.Is(err, ErrInvalidBody) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if Message(err) != "Network error, please try again" {
		t.Fatalf("unexpected user message %q", Message(err))
	}
	if got := testutil.ToFloat64(metrics.requests.WithLabelValues("projects", http.MethodGet, "transport_error")); got != 1 {
		t.Fatalf("expected one transport error observation, got %v", got)
	}
}

func TestDoNetworkFailure(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", nil)
	_, err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/projects", Auth: AuthPublic})
	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestResponseEmpty(t *testing.T) {
	resp := &Response{Data: []byte(`{"hero_section":null}`)}
	if !resp.Empty("hero_section") {
		t.Fatalf("expected null section to be empty")
	}
	resp = &Response{Data: []byte(`{"hero_section":{"id":1}}`)}
	if resp.Empty("hero_section") {
		t.Fatalf("expected present section")
	}
}

func TestBaseURLIsNormalised(t *testing.T) {
	client := NewClient(" https://cms.example.com/api/ ", StaticToken(""))
	if got := client.BaseURL(); got != "https://cms.example.com/api" {
		t.Fatalf("unexpected base url %q", got)
	}
}
