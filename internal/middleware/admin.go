package middleware

import (
	"net/http"
	"strconv"

	"github.com/aligovro/newschools-sub000/internal/domain"

	"github.com/gin-gonic/gin"
)

// OrganizationAccess lets platform admins through and restricts organization admins to
// the organization named by the :org path parameter.
func OrganizationAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := strconv.ParseUint(c.Param("org"), 10, 64)
		if err != nil || orgID == 0 {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"success": false, "message": "organization not found"})
			return
		}
		role, _ := c.Get("role")
		switch role {
		case domain.RoleAdmin:
			c.Next()
			return
		case domain.RoleOrganizationAdmin:
			if v, _ := c.Get("organization_id"); v != nil && uint64(v.(uint)) == orgID {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "no access to this organization"})
	}
}
