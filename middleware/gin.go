package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	goTrust "github.com/MrEthical07/goTrust"
)

// GinSessionKey is the gin context key holding the admitted session.
const GinSessionKey = "gotrust.session"

// GinGuard is Guard for gin routers. ownerOf may be nil.
func GinGuard(a Authorizer, permission string, ownerOf func(*gin.Context) goTrust.Ownership) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a == nil {
			abortGin(c, goTrust.ErrEngineNotReady)
			return
		}

		token, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortGin(c, goTrust.ErrNoSession)
			return
		}

		var owner goTrust.Ownership
		if ownerOf != nil {
			owner = ownerOf(c)
		}

		sig := SignalsFromRequest(c.Request)
		sig.RemoteIP = c.ClientIP()
		ctx := goTrust.WithClientIP(c.Request.Context(), sig.RemoteIP)
		if id := c.GetHeader("X-Request-ID"); id != "" {
			ctx = goTrust.WithRequestID(ctx, id)
		}

		res, err := a.Authorize(ctx, token, sig, permission, owner)
		if err != nil {
			abortGin(c, err)
			return
		}

		c.Set(GinSessionKey, res)
		c.Request = c.Request.WithContext(goTrust.WithActorID(ctx, res.AccountID))
		c.Next()
	}
}

// GinSession returns the session GinGuard admitted the request with.
func GinSession(c *gin.Context) (*goTrust.SessionResult, bool) {
	v, ok := c.Get(GinSessionKey)
	if !ok {
		return nil, false
	}
	res, ok := v.(*goTrust.SessionResult)
	return res, ok
}

func abortGin(c *gin.Context, err error) {
	if errors.Is(err, goTrust.ErrStepUpRequired) {
		c.Header("WWW-Authenticate", StepUpChallenge)
	}
	c.AbortWithStatusJSON(StatusFor(err), gin.H{
		"error": string(goTrust.Classify(err)),
		"msg":   goTrust.PublicMessage(err),
	})
}
