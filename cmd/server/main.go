package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kanbo-io/kanbo/internal/api"
	"github.com/kanbo-io/kanbo/internal/auth"
	"github.com/kanbo-io/kanbo/internal/cache"
	"github.com/kanbo-io/kanbo/internal/config"
	"github.com/kanbo-io/kanbo/internal/db"
	"github.com/kanbo-io/kanbo/internal/events"
	"github.com/kanbo-io/kanbo/internal/middleware"
	"github.com/kanbo-io/kanbo/internal/observ"
	"github.com/kanbo-io/kanbo/internal/refs"
	"github.com/kanbo-io/kanbo/internal/repository/postgres"
	"github.com/kanbo-io/kanbo/internal/service/annotate"
	"github.com/kanbo-io/kanbo/internal/service/favourites"
	"github.com/kanbo-io/kanbo/internal/service/notifications"
	"github.com/kanbo-io/kanbo/internal/service/templates"
	"github.com/kanbo-io/kanbo/internal/service/votes"
	"github.com/kanbo-io/kanbo/internal/service/watches"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// Startup has no deadline: take as long as the database needs.
	database, err := db.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	// Repositories. The vote store is wrapped with the redis counter
	// cache; everything downstream sees the same interface.
	pool := database.Pool()
	voteRepo := cache.NewCachedVotes(postgres.NewVoteStore(pool), rdb, logger)
	watchRepo := postgres.NewWatchStore(pool)
	policyRepo := postgres.NewNotifyPolicyStore(pool)
	membershipRepo := postgres.NewMembershipStore(pool)
	userRepo := postgres.NewUserStore(pool)
	projectRepo := postgres.NewProjectStore(pool)
	workItemRepo := postgres.NewWorkItemStore(pool)
	roleRepo := postgres.NewRoleStore(pool)
	taxonomyRepo := postgres.NewTaxonomyStore(pool)
	templateRepo := postgres.NewTemplateStore(pool)

	// Services.
	registry := refs.Default()
	authorizer := auth.NewAuthorizer(membershipRepo, roleRepo)
	voteSvc := votes.New(voteRepo, logger)
	watchSvc := watches.New(watchRepo, policyRepo, userRepo, logger)
	annotator := annotate.New(voteRepo, watchRepo)
	favouritesSvc := favourites.New(voteRepo, watchRepo, projectRepo, workItemRepo, registry, authorizer)
	templateSvc := templates.New(templateRepo, taxonomyRepo, roleRepo, membershipRepo, projectRepo, logger)

	hub := events.NewHub(logger)
	notificationSvc := notifications.New(watchSvc, hub, logger)

	// Handlers.
	resolver := api.NewEntityResolver(projectRepo, workItemRepo, userRepo)
	authHandler := api.NewAuthHandler(userRepo, cfg, logger)
	socialHandler := api.NewSocialHandler(voteSvc, watchSvc, resolver, authorizer, registry, logger)
	favouritesHandler := api.NewFavouritesHandler(favouritesSvc, logger)
	projectHandler := api.NewProjectHandler(projectRepo, membershipRepo, roleRepo, policyRepo, templateSvc, templateRepo, annotator, authorizer, registry, logger)
	workItemHandler := api.NewWorkItemHandler(workItemRepo, annotator, notificationSvc, resolver, authorizer, registry, logger)

	srv := gin.New()
	srv.Use(gin.Logger(), gin.Recovery())

	srv.GET("/v1/health", func(c *gin.Context) {
		if err := database.Health(c.Request.Context()); err != nil {
			c.JSON(503, gin.H{"status": "degraded"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	srv.POST("/v1/auth/register", authHandler.Register)
	srv.POST("/v1/auth/login", authHandler.Login)

	// Reads go through optional auth: a valid token gives the viewer
	// their membership permissions, no token means the anon permission
	// set. Writes require a token.
	read := srv.Group("/v1")
	read.Use(middleware.OptionalAuthMiddleware(cfg.JWTSecret))
	write := srv.Group("/v1")
	write.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	read.GET("/users/:id/favourites", favouritesHandler.List)
	read.GET("/projects/:id", projectHandler.Get)
	read.GET("/projects/:id/memberships", projectHandler.ListMemberships)

	write.POST("/projects", projectHandler.Create)
	write.POST("/projects/:id/memberships", projectHandler.CreateMembership)
	write.PUT("/projects/:id/notify-policy", projectHandler.SetNotifyPolicy)

	// Social and work item routes per kind. Projects spell voting
	// "like"; work items spell it "upvote".
	routeBase := map[refs.Kind]string{
		refs.KindProject:   "projects",
		refs.KindUserStory: "userstories",
		refs.KindTask:      "tasks",
		refs.KindIssue:     "issues",
	}
	for _, kind := range registry.Kinds() {
		base := routeBase[kind]

		voteVerb, unvoteVerb := "upvote", "downvote"
		if kind == refs.KindProject {
			voteVerb, unvoteVerb = "like", "unlike"
		}
		write.POST("/"+base+"/:id/"+voteVerb, socialHandler.Vote(kind))
		write.POST("/"+base+"/:id/"+unvoteVerb, socialHandler.Unvote(kind))
		write.POST("/"+base+"/:id/watch", socialHandler.Watch(kind))
		write.POST("/"+base+"/:id/unwatch", socialHandler.Unwatch(kind))

		read.GET("/"+base+"/:id/voters", socialHandler.Voters(kind))
		read.GET("/"+base+"/:id/voters/:user_id", socialHandler.GetVoter(kind))
		read.GET("/"+base+"/:id/watchers", socialHandler.Watchers(kind))
		read.GET("/"+base+"/:id/watchers/:user_id", socialHandler.GetWatcher(kind))

		if kind != refs.KindProject {
			write.POST("/"+base, workItemHandler.Create(kind))
			write.POST("/"+base+"/:id/comments", workItemHandler.Comment(kind))
			read.GET("/"+base+"/:id", workItemHandler.Get(kind))
			read.GET("/"+base, workItemHandler.List(kind))
		}
	}

	// Live event stream. The upgrade happens after JWT auth, so every
	// connection is owned by a known user.
	write.GET("/events", func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if err := hub.ServeWS(c.Writer, c.Request, userID); err != nil {
			logger.Error("websocket upgrade failed", zap.Error(err))
		}
	})

	logger.Info("starting kanbo",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
	)
	return srv.Run(":" + cfg.Port)
}
