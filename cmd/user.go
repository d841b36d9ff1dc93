package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/nsxzhou1114/shop-api/internal/model"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var listLimit int

// userCmd 用户管理命令
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "用户管理命令",
	Long:  `用户管理相关的命令，包括创建管理员、列出用户、重置密码等`,
}

// createAdminCmd 创建管理员用户命令
var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "创建管理员用户",
	Long:  `交互式创建管理员用户，邮箱直接标记为已验证`,
	Run: func(cmd *cobra.Command, args []string) {
		createAdminUser()
	},
}

// listUsersCmd 列出用户命令
var listUsersCmd = &cobra.Command{
	Use:   "list",
	Short: "列出用户",
	Long:  `按注册时间倒序列出用户`,
	Run: func(cmd *cobra.Command, args []string) {
		listUsers()
	},
}

// resetPasswordCmd 重置用户密码命令
var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password [email]",
	Short: "重置用户密码",
	Long:  `重置指定用户的密码，该用户的登录会话同时失效`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resetUserPassword(args[0])
	},
}

// updateUserStatusCmd 更新用户状态命令
var updateUserStatusCmd = &cobra.Command{
	Use:   "update-status [email] [status]",
	Short: "更新用户状态",
	Long:  `更新用户状态 (active/inactive/banned)，非 active 状态无法登录`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		updateUserStatus(args[0], args[1])
	},
}

func init() {
	listUsersCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "最多显示的用户数")

	// 添加用户相关子命令
	userCmd.AddCommand(createAdminCmd)
	userCmd.AddCommand(listUsersCmd)
	userCmd.AddCommand(resetPasswordCmd)
	userCmd.AddCommand(updateUserStatusCmd)

	// 将用户命令添加到根命令
	rootCmd.AddCommand(userCmd)
}

// mustInit 初始化失败直接退出
func mustInit(ctx context.Context) *system {
	sys, err := initializeSystem(ctx, false)
	if err != nil {
		fmt.Printf("系统初始化失败: %v\n", err)
		os.Exit(1)
	}
	return sys
}

// readPassword 读取两次密码并比较
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // 换行
	if err != nil {
		return "", fmt.Errorf("读取密码失败: %w", err)
	}

	fmt.Print("请再次输入密码: ")
	confirmBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("读取确认密码失败: %w", err)
	}

	if string(passwordBytes) != string(confirmBytes) {
		return "", fmt.Errorf("两次输入的密码不一致")
	}
	return string(passwordBytes), nil
}

// createAdminUser 创建管理员用户
func createAdminUser() {
	ctx := context.Background()
	sys := mustInit(ctx)
	defer sys.Close(ctx)

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("请输入管理员名称: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)

	fmt.Print("请输入管理员邮箱: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)

	password, err := readPassword("请输入管理员密码: ")
	if err != nil {
		fmt.Println(err)
		return
	}

	user, err := sys.users.CreateAdmin(ctx, name, email, password)
	if err != nil {
		fmt.Printf("创建管理员用户失败: %v\n", err)
		return
	}

	fmt.Printf("管理员用户创建成功！\n")
	fmt.Printf("ID: %s\n", user.ID)
	fmt.Printf("邮箱: %s\n", user.Email)
}

// listUsers 列出用户
func listUsers() {
	ctx := context.Background()
	sys := mustInit(ctx)
	defer sys.Close(ctx)

	users, err := sys.users.ListUsers(ctx, listLimit)
	if err != nil {
		fmt.Printf("查询用户列表失败: %v\n", err)
		return
	}

	fmt.Printf("%-26s %-20s %-32s %-6s %-9s %-6s %-17s %-17s\n",
		"ID", "名称", "邮箱", "角色", "状态", "已验证", "注册时间", "最后登录")
	fmt.Println(strings.Repeat("-", 140))

	for _, user := range users {
		lastLogin := "从未登录"
		if user.LastLoginDate != nil {
			lastLogin = user.LastLoginDate.Format("2006-01-02 15:04")
		}
		verified := "否"
		if user.VerifyEmail {
			verified = "是"
		}

		fmt.Printf("%-26s %-20s %-32s %-6s %-9s %-6s %-17s %-17s\n",
			user.ID, user.Name, user.Email, user.Role, user.Status, verified,
			user.CreatedAt.Format("2006-01-02 15:04"), lastLogin)
	}
}

// resetUserPassword 重置用户密码
func resetUserPassword(email string) {
	ctx := context.Background()
	sys := mustInit(ctx)
	defer sys.Close(ctx)

	password, err := readPassword("请输入新密码: ")
	if err != nil {
		fmt.Println(err)
		return
	}

	if err := sys.users.SetPassword(ctx, email, password); err != nil {
		fmt.Printf("重置密码失败: %v\n", err)
		return
	}

	fmt.Printf("用户 %s 的密码重置成功！\n", email)
}

// updateUserStatus 更新用户状态
func updateUserStatus(email, status string) {
	ctx := context.Background()
	sys := mustInit(ctx)
	defer sys.Close(ctx)

	if err := sys.users.SetStatus(ctx, email, model.UserStatus(status)); err != nil {
		fmt.Printf("更新用户状态失败: %v\n", err)
		return
	}

	fmt.Printf("用户 %s 的状态已更新为: %s\n", email, status)
}
