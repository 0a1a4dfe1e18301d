package shared

// Permissions guarding the Gatehouse administrative surface itself. They are
// seeded into the catalog under the IAM module.
const (
	PermOrgsView = "iam.orgs.view"
	PermOrgsEdit = "iam.orgs.edit"

	PermUsersView = "iam.users.view"
	PermUsersEdit = "iam.users.edit"

	PermRolesView = "iam.roles.view"
	PermRolesEdit = "iam.roles.edit"

	PermCatalogView = "iam.catalog.view"
	PermCatalogEdit = "iam.catalog.edit"

	PermAuditView = "iam.audit.view"
)

// ModuleIAM is the module code gating the administrative surface.
const ModuleIAM = "IAM"

// CoreScopes lists all permissions of the administrative surface.
func CoreScopes() []string {
	return []string{
		PermOrgsView,
		PermOrgsEdit,
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermCatalogView,
		PermCatalogEdit,
		PermAuditView,
	}
}
