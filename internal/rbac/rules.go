package rbac

const (
	PermTestList      = "test:list"
	PermTestRead      = "test:read" // full test, answer key included
	PermTestWrite     = "test:write"
	PermAssetWrite    = "asset:write"
	PermAttemptStart  = "attempt:start"
	PermAttemptAnswer = "attempt:answer"
	PermAttemptSubmit = "attempt:submit"
	PermAttemptResult = "attempt:result"
	PermAttemptList   = "attempt:list"
	PermUserWrite     = "user:write"
	PermUserList      = "user:list"
	PermUserPassword  = "user:change_password"
)

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	"student": {
		PermTestList,
		PermAttemptStart,
		PermAttemptAnswer,
		PermAttemptSubmit,
		PermAttemptResult,
		PermUserPassword,
	},
	"teacher": {
		PermTestList,
		"test:*",
		PermAssetWrite,
		PermAttemptList,
		"user:*",
	},
	"admin": {
		"*", // everything
	},
}
