package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	RequestTimeout time.Duration
	RateLimit      float64
	RateBurst      int
}

type Handlers struct {
	Catalog  *CatalogHandler
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Orders   *OrdersHandler
	Results  *ResultsHandler
}

func NewRouter(cfg RouterConfig, h Handlers, tokens TokenValidator, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	if cfg.RateLimit > 0 {
		r.Use(NewRateLimiter(cfg.RateLimit, cfg.RateBurst).Middleware)
	}
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/", h.Catalog.ListItems)
			r.Get("/{id}", h.Catalog.GetItem)
		})

		r.Group(func(r chi.Router) {
			r.Use(OwnerMiddleware(tokens, log))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.Cart.GetCart)
				r.Delete("/", h.Cart.ClearCart)
				r.Post("/items", h.Cart.AddItem)
				r.Patch("/items/{line_id}", h.Cart.UpdateQuantity)
				r.Delete("/items/{line_id}", h.Cart.RemoveItem)
				r.With(RequireAccount).Post("/merge", h.Cart.MergeCart)
			})

			r.Group(func(r chi.Router) {
				r.Use(RequireAccount)
				r.Post("/checkout", h.Checkout.Checkout)
				r.Get("/orders", h.Orders.ListOrders)
				r.Get("/orders/{id}", h.Orders.GetOrder)
				r.Get("/results", h.Results.ListResults)
				r.Get("/results/{id}", h.Results.GetResult)
			})
		})
	})

	return otelhttp.NewHandler(r, "storefront",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}
