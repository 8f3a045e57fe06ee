package page

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"autoform/internal/orm"
	"autoform/internal/schema"
)

const sessionKey = "autoform.session"

// CommitVeto — откатывать ли транзакцию запроса при таком статусе ответа.
func CommitVeto(status int) bool {
	return status < 200 || status >= 400
}

// Transactional открывает сессию на время запроса и кладёт её в gin.Context.
// reg выбирает реестр схемы для запроса.
// После обработчика сессия фиксируется, если её не закрыл сам обработчик,
// нет ошибок в c.Errors и статус ответа не попадает под CommitVeto.
func Transactional(b func() orm.Backend, reg func(*gin.Context) *schema.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := orm.Open(c.Request.Context(), b(), reg(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Cannot open transaction", "details": err.Error()})
			return
		}
		c.Set(sessionKey, s)
		defer func() {
			if r := recover(); r != nil {
				_ = s.Rollback()
				panic(r)
			}
			if s.Closed() {
				return
			}
			if len(c.Errors) > 0 || CommitVeto(c.Writer.Status()) {
				_ = s.Rollback()
				return
			}
			if err := s.Commit(); err != nil {
				log.Printf("[tx] commit %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
				_ = s.Rollback()
			}
		}()
		c.Next()
	}
}

// SessionFrom возвращает сессию запроса, открытую Transactional.
func SessionFrom(c *gin.Context) *orm.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	s, _ := v.(*orm.Session)
	return s
}
