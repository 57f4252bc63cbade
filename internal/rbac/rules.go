package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"quizset:view",
		"attempt:create",
		"attempt:answer",
		"attempt:finish",
		"attempt:view-own",
		"result:view-own",
		"user:change_password",
	},
	"teacher": {
		"quizset:create",
		"quizset:view",
		"quizset:view-keys",
		"attempt:view-all",
		"result:view-all",
		"users:bulk_upsert",
		"users:list",
		"user:change_password",
	},
	"reviewer": {
		"quizset:view",
		"quizset:view-keys",
		"attempt:view-all",
		"attempt:mark",
		"attempt:check",
		"result:view-all",
		"user:change_password",
	},
	"admin": {
		"*", // everything
	},
}
